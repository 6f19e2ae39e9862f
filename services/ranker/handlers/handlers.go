// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers contains the Gin HTTP handlers for the ranking
// engine API.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/Kodiak/services/ranker/datatypes"
	"github.com/AleutianAI/Kodiak/services/ranker/engine"
	"github.com/AleutianAI/Kodiak/services/ranker/faults"
)

var handlerTracer = otel.Tracer("kodiak.ranker.handlers")

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, faults.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, faults.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, faults.ErrCircuitOpen), errors.Is(err, faults.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HandleRetrieve serves POST /v1/retrieve.
func HandleRetrieve(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "HandleRetrieve")
		defer span.End()

		var request datatypes.RetrieveRequest
		if err := c.BindJSON(&request); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to bind retrieve request JSON", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		span.SetAttributes(
			attribute.Int("limit", request.Limit),
			attribute.String("design_system", request.DesignSystem),
		)

		response, err := eng.Retrieve(ctx, request)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Retrieve failed", "error", err)
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		span.SetAttributes(
			attribute.Int("results", len(response.Results)),
			attribute.String("mode", response.Mode),
		)
		c.JSON(http.StatusOK, response)
	}
}

// HandleFeedback serves POST /v1/feedback.
func HandleFeedback(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "HandleFeedback")
		defer span.End()

		var request datatypes.FeedbackRequest
		if err := c.BindJSON(&request); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to bind feedback request JSON", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		request.EnsureDefaults()
		if err := request.Validate(); err != nil {
			span.RecordError(err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		event := request.Event()
		span.SetAttributes(
			attribute.String("target_element", event.TargetElement.String()),
			attribute.String("polarity", string(event.Polarity)),
		)

		outcome, err := eng.SubmitFeedback(ctx, event)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Feedback submission failed",
				"event_id", event.ID, "error", err)
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, datatypes.FeedbackResponse{
			RequestID:   uuid.NewString(),
			EventID:     event.ID.String(),
			Propagation: outcome.Propagation,
			Reward:      outcome.Reward,
		})
	}
}

// HandleMode serves GET /v1/mode.
func HandleMode(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, eng.ModeInfo())
	}
}

// HandleMetricsSnapshot serves GET /v1/metrics/snapshot. The optional
// reset=true query parameter starts a fresh aggregation window after
// the read.
func HandleMetricsSnapshot(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		reset, _ := strconv.ParseBool(c.Query("reset"))
		c.JSON(http.StatusOK, eng.MetricsSnapshot(reset))
	}
}

// HandleHealth serves GET /v1/health.
func HandleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// RateLimit rejects requests beyond the configured rate with 429.
// Applied to the feedback route so feedback storms cannot amplify
// through graph propagation.
func RateLimit(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "feedback rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
