package mq

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/rs/zerolog"
)

func TestKafkaPublisherPublish(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"transaction_no":"T1"}` {
			return errors.New("unexpected payload: " + string(val))
		}
		return nil
	})
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	pub := NewKafkaPublisherFromProducer(producer)
	if err := pub.Publish("monet.transaction.completed", "T1", []byte(`{"transaction_no":"T1"}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := pub.Publish("monet.transaction.completed", "T2", []byte(`{}`)); !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Fatalf("Publish err = %v, want ErrOutOfBrokers", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

// fakeSession 只实现 ConsumeClaim 用到的方法
type fakeSession struct {
	sarama.ConsumerGroupSession
	ctx    context.Context
	marked []int64
}

func (s *fakeSession) Context() context.Context { return s.ctx }

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.marked = append(s.marked, msg.Offset)
}

type fakeClaim struct {
	sarama.ConsumerGroupClaim
	ch chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.ch }

func TestConsumeClaim(t *testing.T) {
	tests := []struct {
		name       string
		failAt     int64
		wantMarked []int64
		wantErr    bool
	}{
		{name: "all handled", failAt: -1, wantMarked: []int64{0, 1, 2}},
		{name: "stops at failure", failAt: 1, wantMarked: []int64{0}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claim := &fakeClaim{ch: make(chan *sarama.ConsumerMessage, 3)}
			for i := int64(0); i < 3; i++ {
				claim.ch <- &sarama.ConsumerMessage{Topic: "t", Offset: i, Value: []byte("{}")}
			}
			close(claim.ch)

			session := &fakeSession{ctx: context.Background()}
			h := &groupHandler{
				log: zerolog.Nop(),
				handler: func(_ context.Context, msg *sarama.ConsumerMessage) error {
					if msg.Offset == tt.failAt {
						return errors.New("boom")
					}
					return nil
				},
			}

			err := h.ConsumeClaim(session, claim)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if len(session.marked) != len(tt.wantMarked) {
				t.Fatalf("marked = %v, want %v", session.marked, tt.wantMarked)
			}
			for i := range tt.wantMarked {
				if session.marked[i] != tt.wantMarked[i] {
					t.Fatalf("marked = %v, want %v", session.marked, tt.wantMarked)
				}
			}
		})
	}
}

func TestConsumeClaimStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	claim := &fakeClaim{ch: make(chan *sarama.ConsumerMessage)}
	h := &groupHandler{log: zerolog.Nop(), handler: func(context.Context, *sarama.ConsumerMessage) error {
		t.Fatal("handler should not be called")
		return nil
	}}
	if err := h.ConsumeClaim(&fakeSession{ctx: ctx}, claim); err != nil {
		t.Fatalf("err = %v", err)
	}
}
