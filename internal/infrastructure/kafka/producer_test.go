package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/DRSN-tech/photo-search/internal/cfg"
	"github.com/DRSN-tech/photo-search/internal/usecase"
	"github.com/DRSN-tech/photo-search/pkg/logger"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestProducer_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{writer: w, logger: logger.NewNopLogger(), cfg: &cfg.KafkaCfg{Topic: "t"}}

	event := usecase.NewCatalogEvent(usecase.EventImageAdded, "p1", "p1/a.jpg")
	require.NoError(t, p.Publish(context.Background(), event))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "p1", string(msg.Key))
	assert.Equal(t, "image_added", string(msg.Headers[0].Value))

	var got usecase.CatalogEvent
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, *event, got)
}

func TestProducer_RebuildEventKey(t *testing.T) {
	msg, err := toMessage(usecase.NewCatalogEvent(usecase.EventIndexRebuilt, "", ""))
	require.NoError(t, err)
	assert.Equal(t, rebuildKey, string(msg.Key))
}

func TestProducer_WriteError(t *testing.T) {
	boom := errors.New("broker down")
	p := &Producer{writer: &fakeWriter{err: boom}, logger: logger.NewNopLogger(), cfg: &cfg.KafkaCfg{}}

	err := p.Publish(context.Background(), usecase.NewCatalogEvent(usecase.EventProductCreated, "p1", ""))
	assert.ErrorIs(t, err, boom)
}
