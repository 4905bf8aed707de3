package tesseract

import (
	"bufio"
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ocrlab/ocrlab/internal/ocr"
)

// TSV columns: level page_num block_num par_num line_num word_num left top
// width height conf text
const (
	colLevel = iota
	colPage
	colBlock
	colPar
	colLine
	colWord
	colLeft
	colTop
	colWidth
	colHeight
	colConf
	colText
	numCols
)

const levelWord = 5

type lineKey struct{ page, block, par, line int }

type lineAcc struct {
	words                  []string
	confSum                float64
	minX, minY, maxX, maxY float64
}

// parseTSV groups word rows into one fragment per text line, in the order the
// lines first appear.
func parseTSV(out []byte) ([]ocr.Fragment, error) {
	var order []lineKey
	lines := map[lineKey]*lineAcc{}

	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 0, 64<<10), 4<<20)
	header := true
	for sc.Scan() {
		row := sc.Text()
		if header {
			header = false
			if strings.HasPrefix(row, "level") {
				continue
			}
		}
		if strings.TrimSpace(row) == "" {
			continue
		}
		cols := strings.Split(row, "\t")
		if len(cols) < numCols {
			continue
		}
		// The text column may itself contain tabs.
		text := strings.TrimSpace(strings.Join(cols[colText:], "\t"))
		nums, err := atoiAll(cols[:colConf])
		if err != nil {
			return nil, fmt.Errorf("tesseract tsv: %w", err)
		}
		if nums[colLevel] != levelWord || text == "" {
			continue
		}
		conf, err := strconv.ParseFloat(cols[colConf], 64)
		if err != nil || conf < 0 {
			continue
		}

		key := lineKey{nums[colPage], nums[colBlock], nums[colPar], nums[colLine]}
		acc, ok := lines[key]
		if !ok {
			acc = &lineAcc{minX: math.MaxFloat64, minY: math.MaxFloat64}
			lines[key] = acc
			order = append(order, key)
		}
		left, top := float64(nums[colLeft]), float64(nums[colTop])
		acc.words = append(acc.words, text)
		acc.confSum += conf
		acc.minX = math.Min(acc.minX, left)
		acc.minY = math.Min(acc.minY, top)
		acc.maxX = math.Max(acc.maxX, left+float64(nums[colWidth]))
		acc.maxY = math.Max(acc.maxY, top+float64(nums[colHeight]))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("tesseract tsv: %w", err)
	}

	fragments := make([]ocr.Fragment, 0, len(order))
	for _, k := range order {
		acc := lines[k]
		fragments = append(fragments, ocr.Fragment{
			Text:       strings.Join(acc.words, " "),
			Confidence: acc.confSum / float64(len(acc.words)) / 100,
			Box:        ocr.BoxFromRect(acc.minX, acc.minY, acc.maxX-acc.minX, acc.maxY-acc.minY),
		})
	}
	return fragments, nil
}

func atoiAll(cols []string) ([]int, error) {
	out := make([]int, len(cols))
	for i, c := range cols {
		n, err := strconv.Atoi(strings.TrimSpace(c))
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i+1, err)
		}
		out[i] = n
	}
	return out, nil
}
