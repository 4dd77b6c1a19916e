package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// FileType labels the listing counters. The values double as the /list URL
// kind segment.
type FileType string

const (
	// FileTypePreview selects media files directly under a folder.
	FileTypePreview FileType = "Preview"
	// FileTypeExtra selects the non-media files under a folder.
	FileTypeExtra FileType = "Extra"
	// FileTypeFolder selects the subdirectories of a folder.
	FileTypeFolder FileType = "Folder"
)

// FileTypes enumerates every valid listing kind.
var FileTypes = []FileType{FileTypePreview, FileTypeExtra, FileTypeFolder}

// ParseFileType maps a /list URL segment onto its FileType. The match is
// exact; anything else reports false.
func ParseFileType(segment string) (FileType, bool) {
	switch FileType(segment) {
	case FileTypePreview, FileTypeExtra, FileTypeFolder:
		return FileType(segment), true
	default:
		return "", false
	}
}

// CacheLookupOutcome captures the result of a decision cache lookup.
type CacheLookupOutcome string

const (
	// CacheLookupHit indicates the lookup reused a cached decision.
	CacheLookupHit CacheLookupOutcome = "hit"
	// CacheLookupMiss indicates no cached decision was present.
	CacheLookupMiss CacheLookupOutcome = "miss"
	// CacheLookupError indicates the lookup failed due to an error.
	CacheLookupError CacheLookupOutcome = "error"
)

// Recorder publishes the gallery access counters. A nil Recorder is valid
// and turns every method into a no-op, which is how metrics are disabled
// when no metrics port is configured.
type Recorder struct {
	gatherer prometheus.Gatherer
	handler  http.Handler

	authorizedStatic   *prometheus.CounterVec
	unauthorizedStatic *prometheus.CounterVec
	authorizedDynamic  prometheus.Counter
	authorizedNotFound prometheus.Counter

	authorizedThumb   prometheus.Counter
	unauthorizedThumb prometheus.Counter
	pictureThumbAcc   prometheus.Counter
	pictureThumbGen   prometheus.Counter
	videoThumbAcc     prometheus.Counter
	videoThumbGen     prometheus.Counter

	authorizedList   *prometheus.CounterVec
	unauthorizedList *prometheus.CounterVec

	authorizedFirstLevel   prometheus.Counter
	unauthorizedFirstLevel prometheus.Counter

	cacheOperations *prometheus.CounterVec
}

const namespace = "nas_gallery"

func counter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	})
}

// NewRecorder constructs a Prometheus-backed Recorder. When reg is nil a
// dedicated registry is created so multiple recorders can coexist without
// conflicting with the global default registerer.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	r := &Recorder{
		authorizedStatic: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authorized_access_to_static_content",
			Help:      "Static site files served to identified users.",
		}, []string{"path"}),
		unauthorizedStatic: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unauthorized_access_to_static_content",
			Help:      "Requests rejected before serving content.",
		}, []string{"path"}),
		authorizedDynamic: counter("authorized_access_to_dynamic_content",
			"Media streams and SPA fallbacks served to authorized users."),
		authorizedNotFound: counter("authorized_not_found",
			"Authorized requests that resolved to nothing servable."),
		authorizedThumb: counter("authorized_thumb",
			"Thumbnail requests that passed the access check."),
		unauthorizedThumb: counter("unauthorized_thumb",
			"Thumbnail requests rejected by the access check."),
		pictureThumbAcc: counter("picture_thumb_access",
			"Picture thumbnail requests served."),
		pictureThumbGen: counter("picture_thumb_generation",
			"Picture thumbnails generated on a cache miss."),
		videoThumbAcc: counter("video_thumb_access",
			"Video thumbnail requests served."),
		videoThumbGen: counter("video_thumb_generation",
			"Video thumbnails generated on a cache miss."),
		authorizedList: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authorized_list_files",
			Help:      "Folder listings served, by listing kind.",
		}, []string{"file_type"}),
		unauthorizedList: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unauthorized_list_files",
			Help:      "Folder listings rejected, by listing kind.",
		}, []string{"file_type"}),
		authorizedFirstLevel: counter("authorized_first_level_folders",
			"First-level folder queries served."),
		unauthorizedFirstLevel: counter("unauthorized_first_level_folders",
			"First-level folder queries rejected."),
		cacheOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "operations_total",
			Help:      "Decision cache operations by outcome.",
		}, []string{"operation", "result"}),
	}

	reg.MustRegister(
		r.authorizedStatic, r.unauthorizedStatic,
		r.authorizedDynamic, r.authorizedNotFound,
		r.authorizedThumb, r.unauthorizedThumb,
		r.pictureThumbAcc, r.pictureThumbGen,
		r.videoThumbAcc, r.videoThumbGen,
		r.authorizedList, r.unauthorizedList,
		r.authorizedFirstLevel, r.unauthorizedFirstLevel,
		r.cacheOperations,
	)

	// The per-kind listing series start at zero so dashboards see them
	// before the first request.
	for _, ft := range FileTypes {
		r.authorizedList.WithLabelValues(string(ft))
		r.unauthorizedList.WithLabelValues(string(ft))
	}

	r.gatherer = reg
	r.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	return r
}

// Handler exposes the Prometheus HTTP handler for the recorder's registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics unavailable", http.StatusServiceUnavailable)
		})
	}
	return r.handler
}

// Gatherer returns the underlying Prometheus gatherer for tests and advanced
// integrations.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.gatherer
}

// AuthorizedStatic records a static file served to an identified user.
func (r *Recorder) AuthorizedStatic(path string) {
	if r == nil {
		return
	}
	r.authorizedStatic.WithLabelValues(normalizeLabel(path)).Inc()
}

// UnauthorizedStatic records a request rejected before any content was served.
func (r *Recorder) UnauthorizedStatic(path string) {
	if r == nil {
		return
	}
	r.unauthorizedStatic.WithLabelValues(normalizeLabel(path)).Inc()
}

// AuthorizedDynamic records a media stream or SPA fallback served.
func (r *Recorder) AuthorizedDynamic() {
	if r == nil {
		return
	}
	r.authorizedDynamic.Inc()
}

// AuthorizedNotFound records an authorized request that found nothing servable.
func (r *Recorder) AuthorizedNotFound() {
	if r == nil {
		return
	}
	r.authorizedNotFound.Inc()
}

// AuthorizedThumb records a thumbnail request that passed the access check.
func (r *Recorder) AuthorizedThumb() {
	if r == nil {
		return
	}
	r.authorizedThumb.Inc()
}

// UnauthorizedThumb records a thumbnail request rejected by the access check.
func (r *Recorder) UnauthorizedThumb() {
	if r == nil {
		return
	}
	r.unauthorizedThumb.Inc()
}

// PictureThumbAccess records a picture thumbnail served, hit or miss.
func (r *Recorder) PictureThumbAccess() {
	if r == nil {
		return
	}
	r.pictureThumbAcc.Inc()
}

// PictureThumbGeneration records a picture thumbnail built on a cache miss.
func (r *Recorder) PictureThumbGeneration() {
	if r == nil {
		return
	}
	r.pictureThumbGen.Inc()
}

// VideoThumbAccess records a video thumbnail served, hit or miss.
func (r *Recorder) VideoThumbAccess() {
	if r == nil {
		return
	}
	r.videoThumbAcc.Inc()
}

// VideoThumbGeneration records a video thumbnail built on a cache miss.
func (r *Recorder) VideoThumbGeneration() {
	if r == nil {
		return
	}
	r.videoThumbGen.Inc()
}

// AuthorizedList records a folder listing served for the given kind.
func (r *Recorder) AuthorizedList(ft FileType) {
	if r == nil {
		return
	}
	r.authorizedList.WithLabelValues(string(ft)).Inc()
}

// UnauthorizedList records a folder listing rejected for the given kind.
func (r *Recorder) UnauthorizedList(ft FileType) {
	if r == nil {
		return
	}
	r.unauthorizedList.WithLabelValues(string(ft)).Inc()
}

// AuthorizedFirstLevel records a served first-level folder query.
func (r *Recorder) AuthorizedFirstLevel() {
	if r == nil {
		return
	}
	r.authorizedFirstLevel.Inc()
}

// UnauthorizedFirstLevel records a rejected first-level folder query.
func (r *Recorder) UnauthorizedFirstLevel() {
	if r == nil {
		return
	}
	r.unauthorizedFirstLevel.Inc()
}

// ObserveCacheLookup records the result of a decision cache lookup.
func (r *Recorder) ObserveCacheLookup(result CacheLookupOutcome) {
	if r == nil {
		return
	}
	resultLabel := string(result)
	if resultLabel == "" {
		resultLabel = string(CacheLookupMiss)
	}
	r.cacheOperations.WithLabelValues("lookup", resultLabel).Inc()
}

// ObserveCacheStore records the result of a decision cache store attempt.
func (r *Recorder) ObserveCacheStore(err error) {
	if r == nil {
		return
	}
	result := "stored"
	if err != nil {
		result = "error"
	}
	r.cacheOperations.WithLabelValues("store", result).Inc()
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
