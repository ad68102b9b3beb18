package vision

import (
	"bytes"
	"image"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
)

// AutoOrient applies the EXIF orientation embedded in the original bytes to
// the decoded image. Missing or unreadable EXIF leaves the image as-is;
// phone cameras routinely store rotated rasters with only the tag set.
func AutoOrient(original []byte, img image.Image) image.Image {
	meta, err := exif.Decode(bytes.NewReader(original))
	if err != nil {
		return img
	}
	tag, err := meta.Get(exif.Orientation)
	if err != nil {
		return img
	}
	orientation, err := tag.Int(0)
	if err != nil {
		return img
	}

	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}
