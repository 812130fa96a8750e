package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func find(families []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

func TestMetrics_Record(t *testing.T) {
	req := require.New(t)
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.MessageAppended()
	m.MessageAppended()
	m.ConversationLookup("created")
	m.WatchStarted("messages")
	m.WatchStarted("messages")
	m.WatchStopped("messages")
	m.NameLookup(true)
	m.ProcessSample(1024, 1.5, 12)

	families, err := reg.Gather()
	req.NoError(err)

	appended := find(families, "talkstream_messages_appended_total")
	req.NotNil(appended)
	req.Equal(2.0, appended.GetMetric()[0].GetCounter().GetValue())

	watches := find(families, "talkstream_feed_watches_active")
	req.NotNil(watches)
	req.Equal(1.0, watches.GetMetric()[0].GetGauge().GetValue())
	req.Equal("messages", watches.GetMetric()[0].GetLabel()[0].GetValue())

	req.Equal(12.0, find(families, "talkstream_goroutines").GetMetric()[0].GetGauge().GetValue())
}

func TestMetrics_Nil(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.MessageAppended()
		m.Degraded("conversation")
		m.ProcessSample(1, 1, 1)
	})
}

func TestHandler(t *testing.T) {
	req := require.New(t)
	reg := prometheus.NewRegistry()
	NewMetrics(reg).AppendConflict()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	req.Equal(http.StatusOK, rec.Code)
	req.True(strings.Contains(rec.Body.String(), "talkstream_append_conflicts_total 1"))
}
