package imaging

import (
	"fmt"
	"io"
	"os"

	"github.com/astrogo/fitsio"
)

// LoadFITS reads the first two-dimensional image HDU from a FITS stream.
//
// Integer data is scaled with the BSCALE/BZERO header cards when present.
// Axes beyond the second must have length 1; cubes are rejected.
func LoadFITS(r io.Reader) (*Image, error) {
	f, err := fitsio.Open(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open FITS: %w", err)
	}
	defer f.Close()

	for _, hdu := range f.HDUs() {
		img, ok := hdu.(fitsio.Image)
		if !ok {
			continue
		}
		axes := img.Header().Axes()
		if len(axes) < 2 {
			continue
		}
		for _, n := range axes[2:] {
			if n != 1 {
				return nil, fmt.Errorf("FITS image has %d axes; only 2D images are supported", len(axes))
			}
		}
		return readFITSImage(img, axes[0], axes[1])
	}
	return nil, fmt.Errorf("no 2D image HDU found in FITS file")
}

func readFITSImage(img fitsio.Image, width, height int) (*Image, error) {
	n := width * height
	pix := make([]float64, n)
	hdr := img.Header()

	switch hdr.Bitpix() {
	case 8:
		data := make([]byte, n)
		if err := img.Read(&data); err != nil {
			return nil, fmt.Errorf("failed to read FITS data: %w", err)
		}
		for i, v := range data {
			pix[i] = float64(v)
		}
	case 16:
		data := make([]int16, n)
		if err := img.Read(&data); err != nil {
			return nil, fmt.Errorf("failed to read FITS data: %w", err)
		}
		for i, v := range data {
			pix[i] = float64(v)
		}
	case 32:
		data := make([]int32, n)
		if err := img.Read(&data); err != nil {
			return nil, fmt.Errorf("failed to read FITS data: %w", err)
		}
		for i, v := range data {
			pix[i] = float64(v)
		}
	case 64:
		data := make([]int64, n)
		if err := img.Read(&data); err != nil {
			return nil, fmt.Errorf("failed to read FITS data: %w", err)
		}
		for i, v := range data {
			pix[i] = float64(v)
		}
	case -32:
		data := make([]float32, n)
		if err := img.Read(&data); err != nil {
			return nil, fmt.Errorf("failed to read FITS data: %w", err)
		}
		for i, v := range data {
			pix[i] = float64(v)
		}
	case -64:
		if err := img.Read(&pix); err != nil {
			return nil, fmt.Errorf("failed to read FITS data: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported FITS BITPIX %d", hdr.Bitpix())
	}

	if hdr.Bitpix() > 0 {
		scale := cardFloat(hdr, "BSCALE", 1)
		zero := cardFloat(hdr, "BZERO", 0)
		if scale != 1 || zero != 0 {
			for i, v := range pix {
				pix[i] = v*scale + zero
			}
		}
	}

	return &Image{Width: width, Height: height, Pix: pix}, nil
}

func cardFloat(hdr *fitsio.Header, name string, def float64) float64 {
	card := hdr.Get(name)
	if card == nil {
		return def
	}
	switch v := card.Value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}

// WriteFITS writes img as the primary HDU of a new FITS stream, using
// BITPIX -64 so no precision is lost. Extra header cards are appended as-is.
func WriteFITS(w io.Writer, img *Image, cards ...fitsio.Card) error {
	f, err := fitsio.Create(w)
	if err != nil {
		return fmt.Errorf("failed to create FITS: %w", err)
	}

	hdu := fitsio.NewImage(-64, []int{img.Width, img.Height})
	defer hdu.Close()

	if len(cards) > 0 {
		if err := hdu.Header().Append(cards...); err != nil {
			return fmt.Errorf("failed to append FITS header cards: %w", err)
		}
	}
	if err := hdu.Write(img.Pix); err != nil {
		return fmt.Errorf("failed to write FITS data: %w", err)
	}
	if err := f.Write(hdu); err != nil {
		return fmt.Errorf("failed to write FITS HDU: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to finalize FITS: %w", err)
	}
	return nil
}

// SaveFITS writes img to path, replacing any existing file.
func SaveFITS(path string, img *Image, cards ...fitsio.Card) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteFITS(out, img, cards...); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
