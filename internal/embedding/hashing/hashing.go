package hashing

import (
	"context"
	"errors"
	"hash/fnv"
	"image"
	"image/color"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/image/draw"

	"pdfrag/internal/embedding"
)

const (
	DefaultDimension = 512
	gridSize         = 8
	lumaLevels       = 8
	bridgeWeight     = 1.5
)

// words a question uses when it is really asking about a picture; image
// vectors carry them so such questions land near images
var bridgeTerms = []string{"image", "picture", "figure", "chart", "diagram", "graph", "photo", "illustration", "plot"}

// Embedder is an offline joint embedder. Text tokens and bigrams, and image
// luma, colour and edge statistics, are feature-hashed with random signs
// into the same space. It is deterministic and safe for concurrent use.
type Embedder struct {
	dimension    int
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// NewEmbedder creates a hashing embedder of the given dimension.
func NewEmbedder(dimension int) *Embedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Embedder{
		dimension:    dimension,
		tokenPattern: regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}]+)*`),
		stopwords:    defaultStopwords(),
	}
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return "hashing" }

// Dimension returns the dimensionality of the produced embedding vectors.
func (e *Embedder) Dimension() int { return e.dimension }

// EmbedText hashes unigrams and bigrams of the text. Stopwords are dropped
// unless nothing else is left.
func (e *Embedder) EmbedText(_ context.Context, text string) ([]float64, error) {
	vec := make([]float64, e.dimension)
	tokens := e.tokenize(text, true)
	if len(tokens) == 0 {
		tokens = e.tokenize(text, false)
	}
	for i, tok := range tokens {
		e.add(vec, "w:"+stem(tok), 1)
		if i > 0 {
			e.add(vec, "b:"+stem(tokens[i-1])+"_"+stem(tok), 0.5)
		}
	}
	return embedding.Normalize(vec)
}

// EmbedImage hashes a downsampled view of the image.
func (e *Embedder) EmbedImage(_ context.Context, img image.Image) ([]float64, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, errors.New("empty image")
	}
	thumb := image.NewRGBA(image.Rect(0, 0, gridSize, gridSize))
	draw.ApproxBiLinear.Scale(thumb, thumb.Bounds(), img, img.Bounds(), draw.Src, nil)

	vec := make([]float64, e.dimension)
	luma := make([]int, gridSize*gridSize)
	for y := 0; y < gridSize; y++ {
		for x := 0; x < gridSize; x++ {
			c := color.RGBAModel.Convert(thumb.At(x, y)).(color.RGBA)
			l := int(color.GrayModel.Convert(c).(color.Gray).Y)
			cell := y*gridSize + x
			luma[cell] = l
			e.add(vec, "img:l:"+strconv.Itoa(cell)+":"+strconv.Itoa(l*lumaLevels/256), 1)
			bin := int(c.R>>6)<<4 | int(c.G>>6)<<2 | int(c.B>>6)
			e.add(vec, "img:c:"+strconv.Itoa(bin), 1.0/gridSize)
		}
	}
	for y := 0; y < gridSize; y++ {
		for x := 1; x < gridSize; x++ {
			d := luma[y*gridSize+x] - luma[y*gridSize+x-1]
			if d > 32 || d < -32 {
				e.add(vec, "img:e:"+strconv.Itoa(y)+":"+strconv.Itoa(x), 0.5)
			}
		}
	}
	for _, term := range bridgeTerms {
		e.add(vec, "w:"+stem(term), bridgeWeight)
	}
	return embedding.Normalize(vec)
}

func (e *Embedder) add(vec []float64, feature string, weight float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(e.dimension))
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

func (e *Embedder) tokenize(text string, dropStopwords bool) []string {
	raw := e.tokenPattern.FindAllString(strings.ToLower(text), -1)
	if !dropStopwords {
		return raw
	}
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := e.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

// stem folds the most common English plural forms so "charts" and "chart"
// share a feature.
func stem(tok string) string {
	switch {
	case len(tok) > 4 && strings.HasSuffix(tok, "ies"):
		return tok[:len(tok)-3] + "y"
	case len(tok) > 3 && strings.HasSuffix(tok, "s") && !strings.HasSuffix(tok, "ss"):
		return tok[:len(tok)-1]
	}
	return tok
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"what", "which", "who", "does", "do", "did", "show", "shows", "how",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
