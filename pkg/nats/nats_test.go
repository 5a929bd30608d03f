package nats

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func natsURL() string {
	if u := os.Getenv("MDEPTH_NATS_URL"); u != "" {
		return u
	}
	return "nats://127.0.0.1:4222"
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "depth.EURUSD", Subject("depth", "EURUSD"))
	assert.Equal(t, "EURUSD", Subject("", "EURUSD"))
}

func TestUnmarshalJSON(t *testing.T) {
	type payload struct {
		Symbol string `json:"symbol"`
	}
	v, err := UnmarshalJSON[payload]([]byte(`{"symbol":"EURUSD"}`))
	require.NoError(t, err)
	assert.Equal(t, "EURUSD", v.Symbol)

	_, err = UnmarshalJSON[payload]([]byte(`{`))
	assert.Error(t, err)
}

// 需要本地 NATS, 连不上就跳过
func TestPublishSubscribe(t *testing.T) {
	logger, _ := test.NewNullLogger()
	entry := logrus.NewEntry(logger)

	var mu sync.Mutex
	var got []string
	sub, err := NewSubscriber(natsURL(), func(subject string, data []byte) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, subject+"="+string(data))
		return nil
	}, entry)
	if err != nil {
		t.Skipf("skipping test; nats not available: %v", err)
	}
	defer sub.Close()
	require.NoError(t, sub.Subscribe("mdepth.test.>"))

	pub, err := NewPublisher(natsURL(), entry)
	require.NoError(t, err)
	defer pub.Close()

	require.NoError(t, pub.PublishRaw(Subject("mdepth.test", "EURUSD"), []byte("1")))
	require.NoError(t, pub.Publish(Subject("mdepth.test", "GBPUSD"), 2))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"mdepth.test.EURUSD=1", "mdepth.test.GBPUSD=2"}, got)
}
