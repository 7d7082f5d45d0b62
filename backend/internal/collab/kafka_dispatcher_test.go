package collab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"collabcore/backend/internal/ot/delta"
)

func testDispatcher(t *testing.T, sp sarama.SyncProducer, maxRetry int) *KafkaDispatcher {
	t.Helper()
	return NewKafkaDispatcher(sp, "doc-ops", NewSemaphoreControl(2), KafkaDispatcherOptions{
		QueueSize:   8,
		Workers:     1,
		MaxRetry:    maxRetry,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
	})
}

func closeDispatcher(t *testing.T, d *KafkaDispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestKafkaDispatcher_Send(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var evt DocOpEvent
		if err := json.Unmarshal(val, &evt); err != nil {
			return err
		}
		if evt.DocID != "doc-1" || evt.Revision != 3 || evt.Op == nil || evt.Op.TargetLen() != 6 {
			return fmt.Errorf("unexpected event %+v", evt)
		}
		return nil
	})

	d := testDispatcher(t, sp, 0)
	err := d.Enqueue(context.Background(), DocOpEvent{
		EventType: EventOpApplied,
		DocID:     "doc-1",
		Revision:  3,
		Op:        delta.New().Retain(5).Insert("!"),
	})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	closeDispatcher(t, d)

	if sent, dropped := d.Stats(); sent != 1 || dropped != 0 {
		t.Fatalf("Stats() = %d/%d, want 1/0", sent, dropped)
	}
	if err := sp.Close(); err != nil {
		t.Fatalf("producer Close() error = %v", err)
	}
}

func TestKafkaDispatcher_RetriesThenSucceeds(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	sp.ExpectSendMessageAndSucceed()

	d := testDispatcher(t, sp, 3)
	_ = d.Enqueue(context.Background(), DocOpEvent{EventType: EventOpApplied, DocID: "doc-1", Revision: 1})
	closeDispatcher(t, d)

	if sent, dropped := d.Stats(); sent != 1 || dropped != 0 {
		t.Fatalf("Stats() = %d/%d, want 1/0", sent, dropped)
	}
	_ = sp.Close()
}

func TestKafkaDispatcher_DropsAfterMaxRetry(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	d := testDispatcher(t, sp, 1)
	_ = d.Enqueue(context.Background(), DocOpEvent{EventType: EventOpApplied, DocID: "doc-1", Revision: 1})
	closeDispatcher(t, d)

	if sent, dropped := d.Stats(); sent != 0 || dropped != 1 {
		t.Fatalf("Stats() = %d/%d, want 0/1", sent, dropped)
	}
	_ = sp.Close()
}

func TestKafkaDispatcher_EnqueueAfterClose(t *testing.T) {
	d := testDispatcher(t, nil, 0)
	closeDispatcher(t, d)
	if err := d.Enqueue(context.Background(), DocOpEvent{}); !errors.Is(err, ErrDispatcherClosed) {
		t.Fatalf("Enqueue() error = %v, want ErrDispatcherClosed", err)
	}
	// 重复关闭
	closeDispatcher(t, d)
}
