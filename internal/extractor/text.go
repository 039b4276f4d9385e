package extractor

import (
	"errors"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
	"github.com/sirupsen/logrus"
)

// readPageTexts returns the plain text of every page, zero-based. A page
// whose text cannot be read yields "" and a warning; a document that cannot
// be parsed at all is an error.
func readPageTexts(r io.ReaderAt, size int64) (texts []string, err error) {
	defer func() {
		if p := recover(); p != nil {
			texts, err = nil, fmt.Errorf("malformed pdf: %v", p)
		}
	}()

	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, err
	}
	n := reader.NumPage()
	if n == 0 {
		return nil, errors.New("document has no pages")
	}

	// fonts are cached across pages so charmaps are parsed once
	fonts := make(map[string]*pdf.Font)
	texts = make([]string, n)
	for i := 1; i <= n; i++ {
		text, err := pageText(reader.Page(i), fonts)
		if err != nil {
			logrus.WithField("page", i-1).WithError(err).Warn("cannot read page text")
			continue
		}
		texts[i-1] = text
	}
	return texts, nil
}

func pageText(p pdf.Page, fonts map[string]*pdf.Font) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("page content: %v", r)
		}
	}()
	if p.V.IsNull() {
		return "", errors.New("missing page object")
	}
	for _, name := range p.Fonts() {
		if _, ok := fonts[name]; !ok {
			font := p.Font(name)
			fonts[name] = &font
		}
	}
	return p.GetPlainText(fonts)
}
