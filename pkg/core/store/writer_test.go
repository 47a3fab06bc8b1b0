package store

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"fundpipe/pkg/core/fault"
	"fundpipe/pkg/models"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	km := newKeyedMutex()

	var mu sync.Mutex
	running := 0
	maxRunning := 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("FUND|INV|2023-12-31")
			defer unlock()

			mu.Lock()
			running++
			if running > maxRunning {
				maxRunning = running
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			running--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxRunning, "same key never runs concurrently")
	assert.Empty(t, km.locks, "entries are reclaimed after release")
}

func TestKeyedMutexDifferentKeysDoNotBlock(t *testing.T) {
	km := newKeyedMutex()
	unlockA := km.Lock("a")

	done := make(chan struct{})
	go func() {
		unlockB := km.Lock("b")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("different keys must not contend")
	}
	unlockA()
}

func TestFactKeyIncludesAsOf(t *testing.T) {
	asOf := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)
	ws := &WriteSet{Document: models.Document{FundRef: "AFIV", InvestorRef: "INV-A", AsOfDate: &asOf}}
	assert.Equal(t, "AFIV|INV-A|2023-12-31", ws.FactKey())

	ws.Document.AsOfDate = nil
	assert.Equal(t, "AFIV|INV-A|", ws.FactKey())
}

func TestWrapPgMapsErrorCodes(t *testing.T) {
	cases := map[string]fault.Kind{
		"23505": fault.PersistenceConflict,
		"40001": fault.Transient,
		"40P01": fault.Transient,
		"23514": fault.Invalid,
	}
	for code, want := range cases {
		err := wrapPg("op", &pgconn.PgError{Code: code})
		assert.Equal(t, want, fault.KindOf(err), code)
	}

	err := wrapPg("op", errors.New("connection reset"))
	assert.Equal(t, fault.Transient, fault.KindOf(err), "unknown db errors stay retryable")
}
