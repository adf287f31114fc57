package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options on a fresh registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should use the service namespace", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "teamcap")
				So(manager.subsystem, ShouldEqual, "allocation")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test_ns"),
				WithSubsystem("test_sub"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the options should be applied", func() {
				So(manager.namespace, ShouldEqual, "test_ns")
				So(manager.subsystem, ShouldEqual, "test_sub")
				So(manager.histogramBuckets, ShouldResemble, []float64{0.1, 0.5, 1.0})
				So(manager.constLabels["env"], ShouldEqual, "test")
			})

			Convey("And the collectors should be registered", func() {
				manager.commits.WithLabelValues("applied").Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)
			})
		})

		Convey("When empty options are passed", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithHistogramBuckets(nil),
				WithConstLabels(nil),
				WithPrometheusRegistry(registry),
			)

			Convey("Then defaults should be kept", func() {
				So(manager.namespace, ShouldEqual, "teamcap")
				So(len(manager.histogramBuckets), ShouldBeGreaterThan, 0)
			})
		})
	})
}

func TestGlobalRecorders(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording allocation outcomes", func() {
			before := testutil.ToFloat64(globalManager.workUnits.WithLabelValues("no_capacity"))
			RecordWorkUnit("no_capacity")
			RecordWorkUnit("no_capacity")

			Convey("Then the counter should move by the recorded amount", func() {
				after := testutil.ToFloat64(globalManager.workUnits.WithLabelValues("no_capacity"))
				So(after-before, ShouldEqual, 2)
			})
		})

		Convey("When recording selector failures and dropped members", func() {
			before := testutil.ToFloat64(globalManager.selectorFailures.WithLabelValues("timeout"))
			RecordSelectorFailure("timeout")
			RecordDroppedMember("unknown_id")

			So(testutil.ToFloat64(globalManager.selectorFailures.WithLabelValues("timeout"))-before, ShouldEqual, 1)
			So(testutil.ToFloat64(globalManager.droppedMembers.WithLabelValues("unknown_id")), ShouldBeGreaterThanOrEqualTo, 1)
		})

		Convey("When setting gauges", func() {
			UpdateQueueSize(7)
			UpdateWorkerCount(3)
			UpdatePeopleTotal(12)
			IncWorkerBusy()
			IncWorkerBusy()
			DecWorkerBusy()

			Convey("Then the gauges should hold the latest value", func() {
				So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 7)
				So(testutil.ToFloat64(globalManager.workerCount), ShouldEqual, 3)
				So(testutil.ToFloat64(globalManager.peopleTotal), ShouldEqual, 12)
				So(testutil.ToFloat64(globalManager.workerBusy), ShouldEqual, 1)
				DecWorkerBusy()
			})
		})

		Convey("When recording histograms and HTTP traffic", func() {
			So(func() {
				RecordBatch("sequential", 12.5)
				RecordSelectorLatency(80)
				RecordStoreLatency("list_people", 0.3)
				RecordJob("done", 40)
				RecordHTTPRequest("allocations", "POST", "200")
				RecordHTTPRequestDuration("allocations", "POST", "200", 3)
				RecordErrorByEndpoint("allocations", "POST", "client_error")
				RecordErrorByType("client_error", "medium")
				RecordBackupSelection("none")
				RecordProposalSource("fallback")
				UpdateSystemMemoryUsage(1024)
				UpdateSystemGoroutineCount(10)
				RecordSystemGCPauseTime(0.2)
				UpdateQueueCapacity(10)
				RecordQueueRejected("full")
				UpdateWorkUnitsTotal(4)
				RecordCommit("duplicate")
			}, ShouldNotPanic)
		})

		Convey("Then the registry should be exposed", func() {
			So(GetRegistry(), ShouldNotBeNil)
		})
	})
}
