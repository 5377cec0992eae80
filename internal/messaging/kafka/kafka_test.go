package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotgateway/internal/logger"
	"slotgateway/internal/models"
)

func sampleEvent() DispatchEvent {
	return DispatchEvent{
		EventID:   "evt-1",
		RequestID: "req-1",
		Timestamp: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		TaskClass: "reserved",
		PromptID:  "bc3_json_bloque_inicio",
		Outcome:   "success",
		SlotID:    2,
		Provider:  "groq",
		Model:     "groq/compound",
		Attempts:  []models.Attempt{{SlotID: 2, Status: "success"}},
	}
}

func TestPublishDispatch(t *testing.T) {
	mp := mocks.NewAsyncProducer(t, NewConfig())
	mp.ExpectInputWithCheckerFunctionAndSucceed(func(val []byte) error {
		var got DispatchEvent
		if err := json.Unmarshal(val, &got); err != nil {
			return err
		}
		if got.RequestID != "req-1" || got.SlotID != 2 {
			return errors.New("unexpected event body")
		}
		return nil
	})

	p := NewProducerWith(mp, "")
	assert.Equal(t, DefaultTopic, p.topic)
	require.NoError(t, p.PublishDispatch(context.Background(), sampleEvent()))
	require.NoError(t, p.Close())
}

func TestPublishDispatchDeliveryFailureIsDrained(t *testing.T) {
	mp := mocks.NewAsyncProducer(t, NewConfig())
	mp.ExpectInputAndFail(sarama.ErrOutOfBrokers)

	p := NewProducerWith(mp, "events")
	require.NoError(t, p.PublishDispatch(context.Background(), sampleEvent()))
	require.NoError(t, p.Close())
}

func TestDispatchEventsHandler(t *testing.T) {
	var got DispatchEvent
	h := DispatchEvents(func(_ context.Context, e DispatchEvent) error {
		got = e
		return nil
	})

	raw, err := json.Marshal(sampleEvent())
	require.NoError(t, err)
	require.NoError(t, h(context.Background(), &sarama.ConsumerMessage{Value: raw}))
	assert.Equal(t, "bc3_json_bloque_inicio", got.PromptID)

	assert.Error(t, h(context.Background(), &sarama.ConsumerMessage{Value: []byte("{")}))
}

type fakeSession struct {
	sarama.ConsumerGroupSession
	marked []int64
}

func (s *fakeSession) Context() context.Context { return context.Background() }

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.marked = append(s.marked, msg.Offset)
}

type fakeClaim struct {
	sarama.ConsumerGroupClaim
	ch chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.ch }

func TestConsumeClaimMarksOnlyHandledMessages(t *testing.T) {
	c := &Consumer{log: logger.WithComponent("kafka")}
	c.handler = func(_ context.Context, msg *sarama.ConsumerMessage) error {
		if msg.Offset == 1 {
			return errors.New("boom")
		}
		return nil
	}

	claim := &fakeClaim{ch: make(chan *sarama.ConsumerMessage, 3)}
	for i := int64(0); i < 3; i++ {
		claim.ch <- &sarama.ConsumerMessage{Topic: DefaultTopic, Offset: i}
	}
	close(claim.ch)

	session := &fakeSession{}
	require.NoError(t, c.ConsumeClaim(session, claim))
	assert.Equal(t, []int64{0, 2}, session.marked)
}
