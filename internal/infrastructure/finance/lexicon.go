// Package finance turns reconstructed tables and page text into typed
// financial items and per-table metrics. Label matching is lexicon-driven
// (English and Hebrew); numeric parsing follows the locale grammar in
// numbers.go.
package finance

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/finsight-io/finsight/internal/core/domain"
)

//go:embed lexicon.yaml
var lexiconYAML []byte

type lexiconFile struct {
	Items  map[string]map[string][]string `yaml:"items"`
	Tables map[string]map[string][]string `yaml:"tables"`
}

// Lexicon maps normalized line-item labels to item types and holds the
// keyword sets used for table-type tagging.
type Lexicon struct {
	phrases []phrase // longest first
	tables  map[domain.TableType][]string
}

type phrase struct {
	text string
	kind domain.ItemType
}

func LoadLexicon() (*Lexicon, error) {
	var file lexiconFile
	if err := yaml.Unmarshal(lexiconYAML, &file); err != nil {
		return nil, fmt.Errorf("parse embedded lexicon: %w", err)
	}

	lex := &Lexicon{tables: make(map[domain.TableType][]string)}
	for kind, byLang := range file.Items {
		for _, labels := range byLang {
			for _, label := range labels {
				lex.phrases = append(lex.phrases, phrase{
					text: normalizeLabel(label),
					kind: domain.ItemType(kind),
				})
			}
		}
	}
	sort.SliceStable(lex.phrases, func(i, j int) bool {
		return len(lex.phrases[i].text) > len(lex.phrases[j].text)
	})

	for name, byLang := range file.Tables {
		kind := domain.TableType(name)
		for _, keywords := range byLang {
			for _, kw := range keywords {
				lex.tables[kind] = append(lex.tables[kind], normalizeLabel(kw))
			}
		}
	}
	return lex, nil
}

// MatchItem resolves a table-cell label to an item type. Exact match wins;
// otherwise the longest lexicon phrase contained in the label.
func (l *Lexicon) MatchItem(label string) (domain.ItemType, bool) {
	norm := normalizeLabel(label)
	if norm == "" {
		return "", false
	}
	for _, p := range l.phrases {
		if norm == p.text {
			return p.kind, true
		}
	}
	for _, p := range l.phrases {
		if containsPhrase(norm, p.text) {
			return p.kind, true
		}
	}
	return "", false
}

// TagTable scores header and label-column text against the table keyword
// sets. Ties and zero scores stay generic.
func (l *Lexicon) TagTable(table *domain.ExtractedTable) domain.TableType {
	var sample strings.Builder
	for _, h := range table.Header {
		sample.WriteString(normalizeLabel(h))
		sample.WriteByte(' ')
	}
	for _, row := range table.Rows {
		if len(row) > 0 {
			sample.WriteString(normalizeLabel(row[0]))
			sample.WriteByte(' ')
		}
	}
	text := sample.String()

	best, bestScore, tied := domain.TableGeneric, 0, false
	for kind, keywords := range l.tables {
		score := 0
		for _, kw := range keywords {
			if containsPhrase(text, kw) {
				score++
			}
		}
		switch {
		case score > bestScore:
			best, bestScore, tied = kind, score, false
		case score == bestScore && score > 0:
			tied = true
		}
	}
	if bestScore == 0 || tied {
		return domain.TableGeneric
	}
	return best
}

// TableTypeLabels lists the classification labels offered to a language
// provider, generic last.
func TableTypeLabels() []string {
	return []string{
		string(domain.TableBalanceSheet),
		string(domain.TableIncomeStatement),
		string(domain.TableGeneric),
	}
}

func normalizeLabel(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch r {
		case ',', '.', ':', ';', '(', ')', '"', '\'':
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// containsPhrase matches on word boundaries so "equity" does not match
// "equity-linked notes" partial words.
func containsPhrase(text, needle string) bool {
	idx := strings.Index(text, needle)
	for idx >= 0 {
		beforeOK := idx == 0 || text[idx-1] == ' '
		after := idx + len(needle)
		afterOK := after == len(text) || text[after] == ' '
		if beforeOK && afterOK {
			return true
		}
		next := strings.Index(text[idx+1:], needle)
		if next < 0 {
			return false
		}
		idx += 1 + next
	}
	return false
}
