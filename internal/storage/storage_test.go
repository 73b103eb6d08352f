package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	key := InvoiceKey("RG-2026-00001")
	p, err := s.Put(ctx, key, []byte("%PDF-1.3"), "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "invoices/RG-2026-00001.pdf", p)

	data, err := s.Get(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.3", string(data))

	require.NoError(t, s.Delete(ctx, p))
	_, err = s.Get(ctx, p)
	assert.ErrorIs(t, err, ErrObjectNotFound)
	assert.ErrorIs(t, s.Delete(ctx, p), ErrObjectNotFound)
}

func TestLocalStore_StaysInsideRoot(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	p, err := s.Put(context.Background(), "../../etc/passwd", []byte("x"), "text/plain")
	require.NoError(t, err)

	data, err := s.Get(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

func TestInvoiceKey_Sanitizes(t *testing.T) {
	assert.Equal(t, "invoices/RG_2026_1.pdf", InvoiceKey("RG/2026 1"))
}
