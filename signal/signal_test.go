// Copyright (c) 2019 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package signal

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestShutdownCancel(t *testing.T) {
	ctx := WithShutdownCancel(context.Background())
	interrupts := make(chan os.Signal, 1)
	go listen(interrupts)

	select {
	case <-ctx.Done():
		t.Fatal("context cancelled before a signal")
	default:
	}

	interrupts <- os.Interrupt
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("context not cancelled after interrupt")
	}

	// Contexts created after shutdown are cancelled immediately.
	late := WithShutdownCancel(context.Background())
	select {
	case <-late.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("late context not cancelled")
	}
}
