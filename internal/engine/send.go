package engine

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/studyhall/tutormsg/internal/message"
	"github.com/studyhall/tutormsg/internal/overlay"
)

// Send submits the current draft through the optimistic send pipeline:
//
//  1. validate the draft and the selection,
//  2. resolve the counterpart (no optimistic insert without a resolved
//     recipient),
//  3. insert a temporary message and clear the draft,
//  4. append remotely; success triggers an immediate reconcile cycle so
//     the temporary entry is promptly superseded,
//  5. on failure roll the temporary entry back by its ID and restore the
//     draft verbatim.
func (e *Engine) Send(ctx context.Context) error {
	e.mu.Lock()
	if !e.mounted {
		e.mu.Unlock()
		return ErrWidgetClosed
	}
	body := strings.TrimSpace(e.input)
	if utf8.RuneCountInString(body) < e.opts.MinBodyRunes {
		e.mu.Unlock()
		return fmt.Errorf("%w: need at least %d characters", ErrValidation, e.opts.MinBodyRunes)
	}
	key := e.track.SelectedKey()
	if key == "" {
		e.mu.Unlock()
		return ErrNoSelection
	}
	if !e.eligibility[key] {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotEligible, key)
	}
	original := e.input
	e.mu.Unlock()

	recipient, err := e.backend.ResolveCounterpart(ctx, key)
	if err != nil {
		// Abort before any optimistic mutation.
		return fmt.Errorf("resolve counterpart: %w", err)
	}

	p := overlay.PendingSend{
		TempID:          "pending-" + uuid.NewString(),
		ConversationKey: key,
		Direction:       message.Outgoing(e.opts.Role),
		Body:            body,
		CreatedAt:       e.now(),
	}

	e.mu.Lock()
	if !e.mounted {
		e.mu.Unlock()
		return ErrWidgetClosed
	}
	e.ov.AddPending(p)
	e.input = ""
	e.rebuildLocked()
	e.mu.Unlock()
	e.notify()

	if _, err := e.backend.AppendMessage(ctx, key, p.Direction, body, recipient); err != nil {
		e.mu.Lock()
		if e.mounted {
			e.ov.RemovePending(p.TempID)
			e.input = original
			e.rebuildLocked()
		}
		e.mu.Unlock()
		e.notify()
		return fmt.Errorf("send message: %w", err)
	}

	if err := e.RunCycle(ctx); err != nil {
		// The scheduled poll will pick the message up instead.
		e.logger.Debug("post-send reconcile failed", "error", err)
	}
	return nil
}

// SendText replaces the draft with text and submits it.
func (e *Engine) SendText(ctx context.Context, text string) error {
	e.SetInput(text)
	return e.Send(ctx)
}
