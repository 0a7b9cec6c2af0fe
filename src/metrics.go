package vaxel

/*------------------------------------------------------------------
 *
 * Purpose:   	Prometheus counters for the exchange core.
 *
 * Description:	The main loop only increments these.  Serving them
 *		happens on a separate goroutine inside the
 *		prometheus handler, which is safe for concurrent use.
 *
 *---------------------------------------------------------------*/

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Pin change events taken off the expanders, by chip name.
	metricEventsQueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaxel_events_queued_total",
			Help: "Expander pin change events added to the event queue",
		},
		[]string{"chip"},
	)

	metricEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vaxel_events_dropped_total",
			Help: "Events dropped because the event queue was full",
		},
	)

	metricI2CErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaxel_i2c_errors_total",
			Help: "Failed I2C transactions, by chip name",
		},
		[]string{"chip"},
	)

	// Digits by dialing method, "pulse" or "tone".
	metricDigits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaxel_digits_total",
			Help: "Dialed digits accepted",
		},
		[]string{"method"},
	)

	metricStatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaxel_status_transitions_total",
			Help: "Line status transitions, by new status",
		},
		[]string{"status"},
	)

	metricLineStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vaxel_line_status",
			Help: "Current status of each line as its ordinal",
		},
		[]string{"line"},
	)

	metricRingsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vaxel_rings_started_total",
			Help: "Ring cadences started",
		},
	)

	metricLoopOverruns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vaxel_loop_overruns_total",
			Help: "Main loop cycles that took longer than the loop interval",
		},
	)
)

func observe_status(line int, st LineStatus) {
	metricStatusTransitions.WithLabelValues(st.String()).Inc()
	metricLineStatus.WithLabelValues(strconv.Itoa(line)).Set(float64(st))
}

/*-------------------------------------------------------------------
 *
 * Name:        ServeMetrics
 *
 * Purpose:     Expose /metrics until the context is cancelled.
 *
 * Inputs:	ctx	- Stops the server.
 *		addr	- Listen address such as ":9110".
 *
 * Returns:	The bound address, so ":0" can be used in tests.
 *
 *--------------------------------------------------------------------*/

func ServeMetrics(ctx context.Context, addr string) (net.Addr, error) {
	var ln, err = net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	var mux = http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	var srv = &http.Server{ //nolint:exhaustruct
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	go func() {
		var serveErr = srv.Serve(ln)
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			log_root.Error("metrics server stopped", "err", serveErr)
		}
	}()

	return ln.Addr(), nil
}
