// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ranker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/Kodiak/services/ranker/storage/badger"
)

func TestStartJournalGC_PersistentJournal(t *testing.T) {
	cfg := badger.DefaultConfig()
	cfg.Path = t.TempDir()
	db, err := badger.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gc := startJournalGC(db, cfg)
	require.NotNil(t, gc, "persistent journal runs value log GC")
	gc.Stop()
}

func TestStartJournalGC_SkipsInMemoryAndDisabled(t *testing.T) {
	db, err := badger.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	assert.Nil(t, startJournalGC(db, badger.InMemoryConfig()),
		"in-memory journal has no value log to collect")

	cfg := badger.DefaultConfig()
	cfg.GCInterval = 0
	assert.Nil(t, startJournalGC(db, cfg), "zero interval disables GC")
}
