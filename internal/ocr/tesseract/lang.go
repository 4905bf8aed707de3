package tesseract

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// Codes whose tesseract model name is not the plain ISO 639-3 code.
var traineddataNames = map[string]string{
	"ch_sim":      "chi_sim",
	"ch_tra":      "chi_tra",
	"zh":          "chi_sim",
	"zh-hans":     "chi_sim",
	"zh-hant":     "chi_tra",
	"rs_latin":    "srp_latn",
	"rs_cyrillic": "srp",
}

// modelName maps a user-facing language code ("en", "ch_sim", "deu") to the
// name of a tesseract traineddata file.
func modelName(code string) (string, error) {
	c := strings.ToLower(strings.TrimSpace(code))
	if c == "" {
		return "", fmt.Errorf("empty language code")
	}
	if name, ok := traineddataNames[c]; ok {
		return name, nil
	}
	// Already a tesseract model name, e.g. "eng" or "chi_sim".
	if len(c) == 3 || strings.Contains(c, "_") {
		return c, nil
	}
	tag, err := language.Parse(c)
	if err != nil {
		return "", fmt.Errorf("language %q: %w", code, err)
	}
	base, conf := tag.Base()
	if conf == language.No {
		return "", fmt.Errorf("language %q: no base language", code)
	}
	iso3 := base.ISO3()
	if iso3 == "" {
		return "", fmt.Errorf("language %q: no ISO 639-3 code", code)
	}
	return iso3, nil
}

// parseListLangs reads the output of `tesseract --list-langs`.
func parseListLangs(out []byte) map[string]bool {
	langs := map[string]bool{}
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "List of") {
			continue
		}
		langs[line] = true
	}
	return langs
}
