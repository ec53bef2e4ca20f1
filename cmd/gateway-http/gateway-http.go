package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	awsSession "github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/go-kit/kit/log"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gatekeeperhq/gatekeeper/core"
	handler "github.com/gatekeeperhq/gatekeeper/handler/http"
	"github.com/gatekeeperhq/gatekeeper/platform/cache"
	"github.com/gatekeeperhq/gatekeeper/platform/clock"
	"github.com/gatekeeperhq/gatekeeper/platform/kv"
	"github.com/gatekeeperhq/gatekeeper/platform/limiter"
	"github.com/gatekeeperhq/gatekeeper/platform/metrics"
	"github.com/gatekeeperhq/gatekeeper/platform/redis"
	"github.com/gatekeeperhq/gatekeeper/platform/schedule"
	"github.com/gatekeeperhq/gatekeeper/service/device"
	"github.com/gatekeeperhq/gatekeeper/service/invite"
	"github.com/gatekeeperhq/gatekeeper/service/notification"
	"github.com/gatekeeperhq/gatekeeper/service/session"
)

// Logging and telemetry identifiers.
const (
	component                 = "gateway-http"
	namespaceCache            = "cache"
	namespaceService          = "service"
	namespaceSource           = "source"
	subsystemHit              = "hit"
	subsystemQueue            = "queue"
	serviceNotificationCounts = "notification_counts"
	storeCache                = "redis"
	storeService              = "postgres"
)

// Versions.
const (
	versionCurrent = "0.1"
)

// Supported source types.
const (
	sourceNop = "nop"
	sourceSQS = "sqs"
)

// Prefixes.
const (
	prefixKV          = "gatekeeper:kv:"
	prefixRateLimiter = "ratelimiter:token:"
)

// Timeouts.
const (
	defaultReadTimeout  = 2 * time.Second
	defaultWriteTimeout = 3 * time.Second
)

// Buildtime vars.
var (
	revision = "0000000-dev"
)

func main() {
	var (
		begin = time.Now()

		awsID           = flag.String("aws.id", "", "Identifier for AWS requests")
		awsRegion       = flag.String("aws.region", "us-east-1", "AWS Region to operate in")
		awsSecret       = flag.String("aws.secret", "", "Identification secret for AWS requests")
		estateNamespace = flag.String("estate.namespace", "estate_home", "Namespace of the estate this deployment serves")
		estateTimezone  = flag.String("estate.timezone", "UTC", "IANA timezone the estate clock is anchored to")
		listenAddr      = flag.String("listen.addr", ":8083", "HTTP bind address for main API")
		postgresURL     = flag.String("postgres.url", "", "Postgres URL to connect to")
		rateLimit       = flag.Int64("rate.limit", 1000, "Requests allowed per token and minute")
		redisAddr       = flag.String("redis.addr", ":6379", "Redis address to connect to")
		source          = flag.String("source", sourceNop, "Source type used for state change propagations")
		sweepInterval   = flag.Duration("sweep.interval", 30*time.Minute, "Interval between expired invite sweeps")
		telemetryAddr   = flag.String("telemetry.addr", ":9000", "HTTP bind address where prometheus telemetry is exposed")
	)
	flag.Parse()

	logger := log.With(
		log.NewJSONLogger(os.Stdout),
		"caller", log.Caller(3),
		"component", component,
		"revision", revision,
	)

	hostname, err := os.Hostname()
	if err != nil {
		_ = logger.Log("err", err, "lifecycle", "abort")
		os.Exit(1)
	}

	logger = log.With(logger, "host", hostname)

	location, err := time.LoadLocation(*estateTimezone)
	if err != nil {
		_ = logger.Log("err", err, "lifecycle", "abort")
		os.Exit(1)
	}

	estateClock := clock.Estate(location)

	// Setup instrumentation.
	go func(addr string) {
		_ = logger.Log(
			"duration_ns", time.Since(begin).Nanoseconds(),
			"lifecycle", "start",
			"listen", addr,
			"sub", "telemetry",
		)

		http.Handle("/metrics", promhttp.Handler())

		err := http.ListenAndServe(addr, nil)
		if err != nil {
			_ = logger.Log("err", err, "lifecycle", "abort", "sub", "telemetry")
			os.Exit(1)
		}
	}(*telemetryAddr)

	cacheFieldKeys := []string{
		metrics.FieldComponent,
		metrics.FieldMethod,
		metrics.FieldNamespace,
		metrics.FieldService,
		metrics.FieldStore,
	}

	cacheErrCount, cacheOpCount, cacheOpLatency := metrics.KeyMetrics(
		namespaceCache,
		cacheFieldKeys...,
	)

	cacheHitCount := kitprometheus.NewCounterFrom(prometheus.CounterOpts{
		Namespace: namespaceCache,
		Subsystem: subsystemHit,
		Name:      "count",
		Help:      "Number of cache hits",
	}, cacheFieldKeys)

	serviceErrCount, serviceOpCount, serviceOpLatency := metrics.KeyMetrics(
		namespaceService,
		metrics.FieldComponent,
		metrics.FieldMethod,
		metrics.FieldNamespace,
		metrics.FieldService,
		metrics.FieldStore,
	)

	sourceFieldKeys := []string{
		metrics.FieldComponent,
		metrics.FieldMethod,
		metrics.FieldNamespace,
		metrics.FieldSource,
		metrics.FieldStore,
	}

	sourceErrCount, sourceOpCount, sourceOpLatency := metrics.KeyMetrics(
		namespaceSource,
		sourceFieldKeys...,
	)

	sourceQueueLatency := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespaceSource,
			Subsystem: subsystemQueue,
			Name:      "latency_seconds",
			Help:      "Distribution of message queue latency in seconds",
			Buckets:   metrics.BucketsQueue,
		},
		sourceFieldKeys,
	)
	prometheus.MustRegister(sourceQueueLatency)

	// Setup clients.
	var (
		aSession = awsSession.New(&aws.Config{
			Credentials: credentials.NewStaticCredentials(*awsID, *awsSecret, ""),
			Region:      aws.String(*awsRegion),
		})
		redisPool   = redis.Pool(*redisAddr, "")
		rateLimiter = limiter.Redis(redisPool, prefixRateLimiter)
		sqsAPI      = sqs.New(aSession)
		flagStore   = kv.RedisStore(redisPool, prefixKV)
	)

	pgClient, err := sqlx.Connect(storeService, *postgresURL)
	if err != nil {
		_ = logger.Log("err", err, "lifecycle", "abort")
		os.Exit(1)
	}

	// Setup caches.
	var notificationCounts cache.CountService
	notificationCounts = cache.RedisCountService(redisPool)
	notificationCounts = cache.InstrumentCountServiceMiddleware(
		component,
		serviceNotificationCounts,
		storeCache,
		cacheErrCount,
		cacheHitCount,
		cacheOpCount,
		cacheOpLatency,
	)(notificationCounts)

	// Setup sources.
	var inviteSource invite.Source

	switch *source {
	case sourceNop:
		inviteSource = invite.NopSource()
	case sourceSQS:
		inviteSource, err = invite.SQSSource(sqsAPI)
		if err != nil {
			_ = logger.Log("err", err, "lifecycle", "abort")
			os.Exit(1)
		}
	default:
		_ = logger.Log(
			"err", fmt.Sprintf("Source type '%s' not supported", *source),
			"lifecycle", "abort",
		)
		os.Exit(1)
	}

	inviteSource = invite.InstrumentSourceMiddleware(
		component,
		*source,
		sourceErrCount,
		sourceOpCount,
		sourceOpLatency,
		sourceQueueLatency,
	)(inviteSource)
	inviteSource = invite.LogSourceMiddleware(*source, logger)(inviteSource)

	// Setup services.
	var devices device.Service
	devices = device.PostgresService(pgClient)
	devices = device.InstrumentMiddleware(
		component,
		storeService,
		serviceErrCount,
		serviceOpCount,
		serviceOpLatency,
	)(devices)
	devices = device.LogMiddleware(logger, storeService)(devices)

	var invites invite.Service
	invites = invite.PostgresService(pgClient)
	invites = invite.InstrumentMiddleware(
		component,
		storeService,
		serviceErrCount,
		serviceOpCount,
		serviceOpLatency,
	)(invites)
	invites = invite.LogMiddleware(logger, storeService)(invites)
	// Combine invite service and source.
	invites = invite.SourcingServiceMiddleware(inviteSource)(invites)

	var notifications notification.Service
	notifications = notification.PostgresService(pgClient)
	notifications = notification.InstrumentMiddleware(
		component,
		storeService,
		serviceErrCount,
		serviceOpCount,
		serviceOpLatency,
	)(notifications)
	notifications = notification.LogMiddleware(logger, storeService)(notifications)
	// Keep the unread badge count warm.
	notifications = notification.CacheMiddleware(notificationCounts)(notifications)

	var sessions session.Service
	sessions = session.PostgresService(pgClient)
	sessions = session.InstrumentMiddleware(
		component,
		storeService,
		serviceErrCount,
		serviceOpCount,
		serviceOpLatency,
	)(sessions)
	sessions = session.LogMiddleware(logger, storeService)(sessions)

	// Setup background tasks.
	sweepExpired := core.InviteSweepExpired(invites, estateClock)

	sweeper := schedule.New(
		logger,
		"inviteSweepExpired",
		*sweepInterval,
		func() error {
			_, err := sweepExpired(*estateNamespace)
			return err
		},
	)
	sweeper.Start()
	defer sweeper.Stop()

	periodicCheck := core.DevicePeriodicCheck(
		flagStore,
		core.DeviceRemoveInactive(devices, sessions, logger, estateClock),
		estateClock,
	)

	deviceChecker := schedule.New(
		logger,
		"devicePeriodicCheck",
		time.Hour,
		func() error {
			_, err := periodicCheck(*estateNamespace)
			return err
		},
	)
	deviceChecker.Start()
	defer deviceChecker.Stop()

	// Setup middlewares.
	var (
		withEstate = handler.Chain(
			handler.CtxPrepare(versionCurrent),
			handler.Log(logger),
			handler.Instrument(component),
			handler.SecureHeaders(),
			handler.DebugHeaders(revision, hostname),
			handler.CORS(),
			handler.Gzip(),
			handler.HasUserAgent(),
			handler.ValidateContent(),
			handler.CtxNamespace(*estateNamespace),
			handler.CtxDeviceID(),
			handler.RateLimit(rateLimiter, *rateLimit),
		)
		withUser = handler.Chain(
			withEstate,
			handler.CtxUser(sessions),
		)
	)

	// Setup router.
	router := mux.NewRouter().StrictSlash(true)

	router.Methods("GET").Path(`/health-45016490610398192`).Name("healthcheck").HandlerFunc(
		handler.Wrap(
			handler.CtxPrepare(versionCurrent),
			handler.Health(pgClient, redisPool),
		),
	)

	current := router.PathPrefix(fmt.Sprintf("/%s", versionCurrent)).Subrouter()

	// Invite routes.
	current.Methods("POST").Path(`/invites`).Name("inviteCreate").HandlerFunc(
		handler.Wrap(
			withUser,
			handler.InviteCreate(
				core.InviteCreate(invites),
			),
		),
	)

	current.Methods("POST").Path(`/invites/groups`).Name("inviteGroupCreate").HandlerFunc(
		handler.Wrap(
			withUser,
			handler.InviteGroupCreate(
				core.InviteGroupCreate(invites),
			),
		),
	)

	current.Methods("DELETE").Path(`/invites/{inviteKind:[a-z-]+}/{inviteID:[0-9]+}`).Name("inviteDelete").HandlerFunc(
		handler.Wrap(
			withUser,
			handler.InviteDelete(
				core.InviteDelete(invites),
			),
		),
	)

	current.Methods("GET").Path(`/invites`).Name("inviteListAll").HandlerFunc(
		handler.Wrap(
			withUser,
			handler.InviteListAll(
				core.InviteListAll(invites),
			),
		),
	)

	current.Methods("GET").Path(`/me/invites`).Name("inviteListMe").HandlerFunc(
		handler.Wrap(
			withUser,
			handler.InviteListUser(
				core.InviteListUser(invites),
			),
		),
	)

	current.Methods("POST").Path(`/scans`).Name("inviteScan").HandlerFunc(
		handler.Wrap(
			withUser,
			handler.InviteScan(
				core.InviteResolveScan(invites, notifications, estateClock),
			),
		),
	)

	// Device routes.
	current.Methods("GET").Path(`/me/devices`).Name("deviceList").HandlerFunc(
		handler.Wrap(
			withUser,
			handler.DeviceList(
				core.DeviceListUser(devices),
			),
		),
	)

	current.Methods("DELETE").Path(`/me/devices/{deviceID}`).Name("deviceDelete").HandlerFunc(
		handler.Wrap(
			withUser,
			handler.DeviceDelete(
				core.DeviceRemove(devices, sessions),
			),
		),
	)

	// Session routes.
	current.Methods("POST").Path(`/me/login`).Name("sessionCreate").HandlerFunc(
		handler.Wrap(
			withEstate,
			handler.SessionCreate(
				core.SessionCreate(
					sessions,
					core.DeviceRegister(devices, estateClock),
				),
			),
		),
	)

	current.Methods("DELETE").Path(`/me/logout`).Name("sessionDelete").HandlerFunc(
		handler.Wrap(
			withUser,
			handler.SessionDelete(
				core.SessionTerminate(sessions),
			),
		),
	)

	// Notification routes.
	current.Methods("GET").Path(`/me/notifications`).Name("notificationList").HandlerFunc(
		handler.Wrap(
			withUser,
			handler.NotificationListUser(
				core.NotificationListUser(notifications),
			),
		),
	)

	current.Methods("PUT").Path(`/me/notifications/{notificationID:[0-9]+}/read`).Name("notificationMarkRead").HandlerFunc(
		handler.Wrap(
			withUser,
			handler.NotificationMarkRead(
				core.NotificationMarkRead(notifications),
			),
		),
	)

	current.Methods("GET").Path(`/me/notifications/unread/count`).Name("notificationUnreadCount").HandlerFunc(
		handler.Wrap(
			withUser,
			handler.NotificationUnreadCount(
				core.NotificationUnreadCount(notifications),
			),
		),
	)

	// Setup server.
	server := &http.Server{
		Addr:         *listenAddr,
		Handler:      router,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	}

	_ = logger.Log(
		"duration_ns", time.Since(begin).Nanoseconds(),
		"lifecycle", "start",
		"listen", *listenAddr,
		"sub", "api",
	)

	err = server.ListenAndServe()
	if err != nil {
		_ = logger.Log("err", err, "lifecycle", "abort", "sub", "api")
		os.Exit(1)
	}
}
