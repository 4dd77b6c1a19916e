package metrics

import (
	"net/http/httptest"
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func TestRecorderAccessCounters(t *testing.T) {
	rec := NewRecorder(nil)
	rec.AuthorizedStatic("/site/index.html")
	rec.AuthorizedStatic("/site/index.html")
	rec.UnauthorizedStatic("/media/secret.jpg")
	rec.AuthorizedDynamic()
	rec.AuthorizedNotFound()

	families := gather(t, rec,
		"nas_gallery_authorized_access_to_static_content",
		"nas_gallery_unauthorized_access_to_static_content",
		"nas_gallery_authorized_access_to_dynamic_content",
		"nas_gallery_authorized_not_found",
	)

	served := findMetric(t, families["nas_gallery_authorized_access_to_static_content"], map[string]string{
		"path": "/site/index.html",
	})
	if got := served.GetCounter().GetValue(); got != 2 {
		t.Fatalf("expected static counter 2, got %v", got)
	}

	rejected := findMetric(t, families["nas_gallery_unauthorized_access_to_static_content"], map[string]string{
		"path": "/media/secret.jpg",
	})
	if got := rejected.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected unauthorized counter 1, got %v", got)
	}

	dynamic := families["nas_gallery_authorized_access_to_dynamic_content"][0]
	if got := dynamic.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected dynamic counter 1, got %v", got)
	}
}

func TestRecorderThumbCounters(t *testing.T) {
	rec := NewRecorder(nil)
	rec.AuthorizedThumb()
	rec.PictureThumbAccess()
	rec.PictureThumbAccess()
	rec.PictureThumbGeneration()
	rec.VideoThumbAccess()
	rec.VideoThumbGeneration()
	rec.UnauthorizedThumb()

	families := gather(t, rec,
		"nas_gallery_picture_thumb_access",
		"nas_gallery_picture_thumb_generation",
		"nas_gallery_video_thumb_access",
		"nas_gallery_video_thumb_generation",
	)

	if got := families["nas_gallery_picture_thumb_access"][0].GetCounter().GetValue(); got != 2 {
		t.Fatalf("expected picture access 2, got %v", got)
	}
	if got := families["nas_gallery_picture_thumb_generation"][0].GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected picture generation 1, got %v", got)
	}
	if got := families["nas_gallery_video_thumb_access"][0].GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected video access 1, got %v", got)
	}
}

func TestRecorderListCountersPreInitialized(t *testing.T) {
	rec := NewRecorder(nil)

	families := gather(t, rec, "nas_gallery_authorized_list_files", "nas_gallery_unauthorized_list_files")
	for _, ft := range FileTypes {
		m := findMetric(t, families["nas_gallery_authorized_list_files"], map[string]string{
			"file_type": string(ft),
		})
		if got := m.GetCounter().GetValue(); got != 0 {
			t.Fatalf("expected pre-initialized %s series at 0, got %v", ft, got)
		}
	}

	rec.AuthorizedList(FileTypePreview)
	rec.UnauthorizedList(FileTypeFolder)

	families = gather(t, rec, "nas_gallery_authorized_list_files", "nas_gallery_unauthorized_list_files")
	preview := findMetric(t, families["nas_gallery_authorized_list_files"], map[string]string{
		"file_type": string(FileTypePreview),
	})
	if got := preview.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected Preview counter 1, got %v", got)
	}
	folder := findMetric(t, families["nas_gallery_unauthorized_list_files"], map[string]string{
		"file_type": string(FileTypeFolder),
	})
	if got := folder.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected Folder counter 1, got %v", got)
	}
}

func TestRecorderCacheOperations(t *testing.T) {
	rec := NewRecorder(nil)
	rec.ObserveCacheLookup(CacheLookupHit)
	rec.ObserveCacheStore(nil)

	families := gather(t, rec, "nas_gallery_cache_operations_total")

	lookup := findMetric(t, families["nas_gallery_cache_operations_total"], map[string]string{
		"operation": "lookup",
		"result":    string(CacheLookupHit),
	})
	if got := lookup.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected lookup counter 1, got %v", got)
	}
	store := findMetric(t, families["nas_gallery_cache_operations_total"], map[string]string{
		"operation": "store",
		"result":    "stored",
	})
	if got := store.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected store counter 1, got %v", got)
	}
}

func TestParseFileType(t *testing.T) {
	for _, ft := range FileTypes {
		got, ok := ParseFileType(string(ft))
		if !ok || got != ft {
			t.Fatalf("expected %q to parse, got %q ok=%v", ft, got, ok)
		}
	}
	for _, bad := range []string{"preview", "PREVIEW", "Other", ""} {
		if _, ok := ParseFileType(bad); ok {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestNilRecorderIsNoOp(t *testing.T) {
	var rec *Recorder
	rec.AuthorizedStatic("/x")
	rec.UnauthorizedStatic("/x")
	rec.AuthorizedDynamic()
	rec.AuthorizedNotFound()
	rec.AuthorizedThumb()
	rec.UnauthorizedThumb()
	rec.PictureThumbAccess()
	rec.PictureThumbGeneration()
	rec.VideoThumbAccess()
	rec.VideoThumbGeneration()
	rec.AuthorizedList(FileTypePreview)
	rec.UnauthorizedList(FileTypePreview)
	rec.AuthorizedFirstLevel()
	rec.UnauthorizedFirstLevel()
	rec.ObserveCacheLookup(CacheLookupMiss)
	rec.ObserveCacheStore(nil)

	rr := httptest.NewRecorder()
	rec.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	if rr.Code != 503 {
		t.Fatalf("expected 503 from nil recorder handler, got %d", rr.Code)
	}
}

func TestRecorderHandler(t *testing.T) {
	rec := NewRecorder(nil)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)

	rec.Handler().ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Fatalf("expected 200 response, got %d", rr.Code)
	}
	if rr.Body.Len() == 0 {
		t.Fatalf("expected response body")
	}
}

func gather(t *testing.T, rec *Recorder, names ...string) map[string][]*dto.Metric {
	t.Helper()
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[name] = true
	}
	families, err := rec.Gatherer().Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	collected := make(map[string][]*dto.Metric, len(names))
	for _, mf := range families {
		if !wanted[mf.GetName()] {
			continue
		}
		collected[mf.GetName()] = append(collected[mf.GetName()], mf.GetMetric()...)
	}
	for _, name := range names {
		if len(collected[name]) == 0 {
			t.Fatalf("metric %q not collected", name)
		}
	}
	return collected
}

func findMetric(t *testing.T, metrics []*dto.Metric, labels map[string]string) *dto.Metric {
	t.Helper()
	for _, metric := range metrics {
		if matchLabels(metric, labels) {
			return metric
		}
	}
	t.Fatalf("metric with labels %v not found", labels)
	return nil
}

func matchLabels(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.GetLabel()) < len(labels) {
		return false
	}
	for key, expected := range labels {
		found := false
		for _, label := range metric.GetLabel() {
			if label.GetName() == key && label.GetValue() == expected {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
