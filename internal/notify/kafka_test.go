package notify

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestKafka_Send(t *testing.T) {
	producer := mocks.NewAsyncProducer(t, sarama.NewConfig())
	producer.ExpectInputWithCheckerFunctionAndSucceed(func(val []byte) error {
		var msg Message
		if err := json.Unmarshal(val, &msg); err != nil {
			return err
		}
		assert.Equal(t, "order_confirmation", msg.Template)
		assert.Equal(t, "o-1", msg.Vars["order_id"])
		return nil
	})

	k := newKafka(producer, "notifications", zap.NewNop())
	err := k.Send(context.Background(), "order_confirmation", map[string]string{"order_id": "o-1"})
	require.NoError(t, err)

	select {
	case m := <-producer.Successes():
		assert.Equal(t, "notifications", m.Topic)
	default:
	}
	require.NoError(t, k.Close())
}

func TestLog_Send(t *testing.T) {
	require.NoError(t, Log{}.Send(context.Background(), "t", map[string]string{"a": "b"}))
}
