package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordCall(t *testing.T) {
	before := testutil.ToFloat64(clientCalls.WithLabelValues("get_stat", "ok"))
	RecordCall("get_stat", "ok", 5*time.Millisecond)
	RecordCall("get_stat", "ok", 5*time.Millisecond)
	after := testutil.ToFloat64(clientCalls.WithLabelValues("get_stat", "ok"))
	assert.Equal(t, before+2, after)
}

func TestRecordRouted(t *testing.T) {
	before := testutil.ToFloat64(routerObjects.WithLabelValues("dsg_local_commands", "error"))
	RecordRouted("dsg_local_commands", "error", time.Millisecond)
	after := testutil.ToFloat64(routerObjects.WithLabelValues("dsg_local_commands", "error"))
	assert.Equal(t, before+1, after)
}
