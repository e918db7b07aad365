package main

import (
	"strings"
	"testing"
	"time"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"

	"github.com/unclebandit/fundraise-backend/internal/model"
)

func TestRenderEvent(t *testing.T) {
	pterm.DisableColor()
	defer pterm.EnableColor()

	env := model.EventEnvelope{
		Seq:         7,
		TxSeq:       3,
		TxID:        "8f14e45f-ceea-467f-a0e6-70e4a3d3c2e1",
		Name:        model.EventDonationReceived,
		CommittedAt: time.Date(2026, 5, 1, 12, 30, 0, 0, time.UTC),
	}
	out := renderEvent(env, "donated 0.99 ETH to campaign #0")

	assert.Contains(t, out, "|DonationReceived #7|")
	assert.Contains(t, out, "donated 0.99 ETH to campaign #0")
	assert.Contains(t, out, "tx 3 (8f14e45f-ceea-467f-a0e6-70e4a3d3c2e1) at 2026-05-01 12:30:00")
	assert.True(t, strings.Count(out, "\n") >= 3)
}
