// Package gps reads embedded GPS positions from images held in object storage.
package gps

import (
	"errors"
	"fmt"
	"io"

	"github.com/rwcarlsen/goexif/exif"
)

// ErrNoGPS is returned when an image carries EXIF data without a position.
var ErrNoGPS = errors.New("no GPS data")

// Decoder extracts a decimal latitude/longitude pair from image bytes.
type Decoder interface {
	Decode(r io.Reader) (lat, lon float64, err error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(r io.Reader) (float64, float64, error)

func (f DecoderFunc) Decode(r io.Reader) (float64, float64, error) {
	return f(r)
}

// ExifDecoder reads GPS tags with goexif.
type ExifDecoder struct{}

func (ExifDecoder) Decode(r io.Reader) (float64, float64, error) {
	x, err := exif.Decode(r)
	if err != nil {
		return 0, 0, fmt.Errorf("read exif: %w", err)
	}

	lat, latRef, err := coordinate(x, exif.GPSLatitude, exif.GPSLatitudeRef)
	if err != nil {
		return 0, 0, err
	}
	lon, lonRef, err := coordinate(x, exif.GPSLongitude, exif.GPSLongitudeRef)
	if err != nil {
		return 0, 0, err
	}
	return ToDecimal(lat, latRef), ToDecimal(lon, lonRef), nil
}

// coordinate reads a degrees/minutes/seconds rational triple and its hemisphere.
func coordinate(x *exif.Exif, field, refField exif.FieldName) ([3]float64, string, error) {
	var dms [3]float64
	tag, err := x.Get(field)
	if err != nil {
		return dms, "", ErrNoGPS
	}
	for i := range dms {
		num, den, err := tag.Rat2(i)
		if err != nil {
			return dms, "", fmt.Errorf("%s: %w", field, err)
		}
		if den != 0 {
			dms[i] = float64(num) / float64(den)
		}
	}

	ref := ""
	if refTag, err := x.Get(refField); err == nil {
		if s, err := refTag.StringVal(); err == nil {
			ref = s
		}
	}
	return dms, ref, nil
}

// ToDecimal converts degrees, minutes and seconds to decimal degrees. South
// and West references are negative.
func ToDecimal(dms [3]float64, ref string) float64 {
	decimal := dms[0] + dms[1]/60 + dms[2]/3600
	if ref == "S" || ref == "W" {
		return -decimal
	}
	return decimal
}
