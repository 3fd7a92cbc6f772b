package gps

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/andresuchdata/hydra-workflows/internal/domain"
	"github.com/andresuchdata/hydra-workflows/internal/testsupport"
)

// textDecoder reads "lat,lon" from the object body; "none" means no GPS.
var textDecoder = DecoderFunc(func(r io.Reader) (float64, float64, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return 0, 0, err
	}
	body := string(b)
	if body == "none" {
		return 0, 0, ErrNoGPS
	}
	lat, lon, ok := strings.Cut(body, ",")
	if !ok {
		return 0, 0, errors.New("corrupt exif block")
	}
	la, _ := strconv.ParseFloat(lat, 64)
	lo, _ := strconv.ParseFloat(lon, 64)
	return la, lo, nil
})

func seed(store *testsupport.MemoryStore, bucket string, objects map[string]string) []domain.InputImage {
	var images []domain.InputImage
	for key, body := range objects {
		store.Add(bucket, key, []byte(body))
		images = append(images, domain.InputImage{
			Bucket:       bucket,
			Key:          key,
			Size:         int64(len(body)),
			LastModified: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		})
	}
	return images
}

func TestExtractSkipsImageWithoutGPS(t *testing.T) {
	store := testsupport.NewMemoryStore("raw")
	images := seed(store, "raw", map[string]string{
		"flight/img1.jpg": "1.5,103.8",
		"flight/img2.jpg": "1.6,103.9",
		"flight/img3.jpg": "none",
		"flight/img4.jpg": "1.7,104.0",
		"flight/img5.jpg": "1.8,104.1",
	})
	ex := NewExtractor(store, WithDecoder(textDecoder), WithWorkers(3))

	report := ex.Extract(context.Background(), images)

	if len(report.Located) != 4 {
		t.Fatalf("expected 4 located images, got %d", len(report.Located))
	}
	if len(report.Skipped) != 1 || report.Skipped[0].Key != "flight/img3.jpg" {
		t.Fatalf("unexpected skips %+v", report.Skipped)
	}
	if report.Located[0].Filename != "flight/img1.jpg" {
		t.Fatalf("located images must be sorted by key, got %s first", report.Located[0].Filename)
	}

	raw, ok := store.Object("raw", "meta/img1.jpg.gps.json")
	if !ok {
		t.Fatal("expected sidecar for img1")
	}
	var sidecar map[string]any
	if err := json.Unmarshal(raw, &sidecar); err != nil {
		t.Fatalf("sidecar is not json: %v", err)
	}
	if sidecar["filename"] != "flight/img1.jpg" || sidecar["latitude"] != 1.5 || sidecar["last_modified"] != "2024-05-01T12:00:00Z" {
		t.Fatalf("unexpected sidecar %v", sidecar)
	}
	if _, ok := sidecar["Bucket"]; ok {
		t.Fatal("sidecar must not carry the bucket")
	}
	if ct := store.ContentType("raw", "meta/img1.jpg.gps.json"); ct != "application/json" {
		t.Fatalf("unexpected sidecar content type %q", ct)
	}
	if _, ok := store.Object("raw", "meta/img3.jpg.gps.json"); ok {
		t.Fatal("no sidecar may be written for an image without GPS")
	}
}

func TestExtractRecordsReadErrorsAsSkips(t *testing.T) {
	store := testsupport.NewMemoryStore("raw")
	images := seed(store, "raw", map[string]string{
		"a.jpg": "garbage",
		"b.jpg": "10,20",
	})
	images = append(images, domain.InputImage{Bucket: "raw", Key: "missing.jpg"})
	ex := NewExtractor(store, WithDecoder(textDecoder))

	report := ex.Extract(context.Background(), images)

	if len(report.Located) != 1 || report.Located[0].Filename != "b.jpg" {
		t.Fatalf("unexpected located %+v", report.Located)
	}
	if len(report.Skipped) != 2 {
		t.Fatalf("expected 2 skips, got %+v", report.Skipped)
	}
	if !strings.Contains(report.Skipped[0].Reason, "corrupt") {
		t.Fatalf("unexpected reason %q", report.Skipped[0].Reason)
	}
}

func TestExtractNoImages(t *testing.T) {
	report := NewExtractor(testsupport.NewMemoryStore()).Extract(context.Background(), nil)
	if len(report.Located) != 0 || len(report.Skipped) != 0 {
		t.Fatalf("expected empty report, got %+v", report)
	}
}

func TestToDecimal(t *testing.T) {
	got := ToDecimal([3]float64{33, 56, 31.2}, "S")
	if math.Abs(got-(-33.942)) > 1e-9 {
		t.Fatalf("unexpected decimal %v", got)
	}
	if got := ToDecimal([3]float64{151, 10, 30}, "E"); math.Abs(got-151.175) > 1e-9 {
		t.Fatalf("unexpected decimal %v", got)
	}
}

func TestExifDecoderRejectsNonExif(t *testing.T) {
	if _, _, err := (ExifDecoder{}).Decode(strings.NewReader("not an image")); err == nil {
		t.Fatal("expected error for data without exif")
	}
}

func TestSidecarKey(t *testing.T) {
	if got := SidecarKey("flights/2024/IMG_0001.JPG"); got != "meta/IMG_0001.JPG.gps.json" {
		t.Fatalf("unexpected sidecar key %q", got)
	}
}

func TestWriteFeatureCollection(t *testing.T) {
	store := testsupport.NewMemoryStore("raw")
	report := Report{Located: []Location{
		{Filename: "a.jpg", Latitude: 1.5, Longitude: 103.8},
		{Filename: "b.jpg", Latitude: 1.6, Longitude: 103.9},
	}}
	key := CollectionKey("flight-1/")
	if key != "meta/flight-1/gps.geojson" {
		t.Fatalf("unexpected collection key %q", key)
	}

	written, err := WriteFeatureCollection(context.Background(), store, "raw", key, report)
	if err != nil || !written {
		t.Fatalf("WriteFeatureCollection = %v, %v", written, err)
	}
	raw, _ := store.Object("raw", key)
	var doc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("geojson decode: %v", err)
	}
	if doc.Type != "FeatureCollection" || len(doc.Features) != 2 {
		t.Fatalf("unexpected collection %+v", doc)
	}
	if c := doc.Features[0].Geometry.Coordinates; c[0] != 103.8 || c[1] != 1.5 {
		t.Fatalf("coordinates must be lon,lat: %v", c)
	}

	bound, ok := Bound(report)
	if !ok || bound.Min[1] != 1.5 || bound.Max[0] != 103.9 {
		t.Fatalf("unexpected bound %v", bound)
	}

	written, err = WriteFeatureCollection(context.Background(), store, "raw", "meta/empty.geojson", Report{})
	if err != nil || written {
		t.Fatalf("empty report must not be written: %v %v", written, err)
	}
}
