package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/garyellow/kmutt-form-bot/internal/logger"
	"github.com/garyellow/kmutt-form-bot/internal/rag"
	"github.com/garyellow/kmutt-form-bot/internal/storage"
)

type verifyingDense struct {
	verifyErr error
	closed    bool
}

func (d *verifyingDense) Name() string { return "qdrant" }
func (d *verifyingDense) Search(context.Context, string, int) ([]rag.Passage, error) {
	return nil, nil
}
func (d *verifyingDense) EnsureCollection(context.Context, bool) error            { return nil }
func (d *verifyingDense) Verify(context.Context) error                           { return d.verifyErr }
func (d *verifyingDense) Upsert(context.Context, []storage.StoredPassage) error { return nil }
func (d *verifyingDense) DeleteByFile(context.Context, string) error             { return nil }
func (d *verifyingDense) Count(context.Context) (int, error)                     { return 0, nil }
func (d *verifyingDense) Close() error {
	d.closed = true
	return nil
}

func TestCheckDenseStore(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		verifyErr  error
		wantKept   bool
		wantClosed bool
	}{
		{name: "healthy", wantKept: true},
		{
			name:       "wrong dimension",
			verifyErr:  fmt.Errorf("%w: 384 vs 768", rag.ErrCollectionMismatch),
			wantClosed: true,
		},
		{name: "unreachable", verifyErr: errors.New("connection refused"), wantKept: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := &verifyingDense{verifyErr: tt.verifyErr}
			got := checkDenseStore(context.Background(), d, logger.NewWithWriter("error", io.Discard))
			if tt.wantKept {
				assert.Equal(t, rag.DenseStore(d), got)
			} else {
				assert.Nil(t, got)
			}
			assert.Equal(t, tt.wantClosed, d.closed)
		})
	}

	assert.Nil(t, checkDenseStore(context.Background(), nil, logger.NewWithWriter("error", io.Discard)))
}
