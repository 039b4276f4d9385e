package extractor

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"sort"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"pdfrag/internal/domain"
)

// rawImage is one image as found in the document. err is set when the
// image stream itself could not be read; the image still holds its place.
type rawImage struct {
	page int // one-based, as reported by pdfcpu
	obj  int
	name string
	data io.Reader
	err  error
}

type imageSource interface {
	extract(rs io.ReadSeeker) ([]rawImage, error)
}

var disableConfigDir sync.Once

type pdfcpuSource struct {
	conf *model.Configuration
}

func newPDFCPUSource() *pdfcpuSource {
	disableConfigDir.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	conf.Cmd = model.EXTRACTIMAGES
	return &pdfcpuSource{conf: conf}
}

// extract reads the document once and pulls every page image separately, so
// a broken stream costs only that image. An error means the document as a
// whole could not be read.
func (s *pdfcpuSource) extract(rs io.ReadSeeker) (raws []rawImage, err error) {
	defer func() {
		if p := recover(); p != nil {
			raws, err = nil, fmt.Errorf("pdfcpu: %v", p)
		}
	}()
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	ctx, err := api.ReadValidateAndOptimize(rs, s.conf)
	if err != nil {
		return nil, err
	}
	for page := 1; page <= ctx.PageCount; page++ {
		objNrs := pdfcpu.ImageObjNrs(ctx, page)
		sort.Ints(objNrs)
		for _, obj := range objNrs {
			raws = append(raws, extractOne(ctx, page, obj))
		}
	}
	return raws, nil
}

func extractOne(ctx *model.Context, page, obj int) (raw rawImage) {
	raw = rawImage{page: page, obj: obj}
	defer func() {
		if p := recover(); p != nil {
			raw.data, raw.err = nil, fmt.Errorf("pdfcpu: %v", p)
		}
	}()
	imgObj, ok := ctx.Optimize.ImageObjects[obj]
	if !ok || imgObj == nil {
		raw.err = fmt.Errorf("image object %d not found", obj)
		return raw
	}
	raw.name = imgObj.ResourceNames[page-1]
	img, err := pdfcpu.ExtractImage(ctx, imgObj.ImageDict, false, raw.name, obj, false)
	switch {
	case err != nil:
		raw.err = err
	case img == nil || img.Reader == nil:
		raw.err = fmt.Errorf("image object %d: unsupported encoding", obj)
	default:
		raw.data = img.Reader
	}
	return raw
}

// groupByPage buckets images per zero-based page in document object order.
func groupByPage(raws []rawImage, pageCount int) [][]rawImage {
	out := make([][]rawImage, pageCount)
	for _, r := range raws {
		p := r.page - 1
		if p < 0 || p >= pageCount {
			logrus.WithFields(logrus.Fields{"page": r.page, "object": r.obj}).Warn("image outside page range, ignoring")
			continue
		}
		out[p] = append(out[p], r)
	}
	for _, imgs := range out {
		sort.SliceStable(imgs, func(i, j int) bool { return imgs[i].obj < imgs[j].obj })
	}
	return out
}

// decodePageImages decodes the images of one page. Each image keeps its
// position among all images of the page, so a failure leaves a gap in the
// indexes rather than shifting later ones.
func decodePageImages(page int, raws []rawImage) ([]domain.PageImage, []*domain.ImageDecodeError) {
	var (
		imgs    []domain.PageImage
		skipped []*domain.ImageDecodeError
	)
	for i, r := range raws {
		var (
			img image.Image
			err = r.err
		)
		if err == nil {
			img, err = decodeImage(r.data)
		}
		if err != nil {
			skipped = append(skipped, &domain.ImageDecodeError{Page: page, Index: i, Err: err})
			continue
		}
		imgs = append(imgs, domain.PageImage{Index: i, Image: img})
	}
	return imgs, skipped
}

func decodeImage(r io.Reader) (img image.Image, err error) {
	defer func() {
		if p := recover(); p != nil {
			img, err = nil, fmt.Errorf("decoder panic: %v", p)
		}
	}()
	if r == nil {
		return nil, fmt.Errorf("no image data")
	}
	img, _, err = image.Decode(r)
	if err != nil {
		return nil, err
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("empty image")
	}
	return img, nil
}

// EncodePNG returns img as base64-encoded PNG.
func EncodePNG(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
