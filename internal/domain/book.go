package domain

import (
	"strings"
	"unicode/utf8"
)

// CaptionMaxRunes is the relay's caption limit.
const CaptionMaxRunes = 1024

// Source names the origin library a book was imported from. Its ID selects
// the downloader strategy.
type Source struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Person is an author or translator as returned by the catalog.
type Person struct {
	ID         int    `json:"id"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	MiddleName string `json:"middle_name"`
}

// FullName joins the non-empty name parts as "Last First Middle".
func (p Person) FullName() string {
	parts := make([]string, 0, 3)
	for _, s := range []string{p.LastName, p.FirstName, p.MiddleName} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// Book is the catalog's base representation of an item.
type Book struct {
	ID               int      `json:"id"`
	Title            string   `json:"title"`
	Lang             string   `json:"lang"`
	FileType         string   `json:"file_type"`
	AvailableTypes   []string `json:"available_types"`
	Uploaded         string   `json:"uploaded"`
	RemoteID         int      `json:"remote_id"`
	Source           Source   `json:"source"`
	Authors          []Person `json:"authors"`
	Translators      []Person `json:"translators"`
	AnnotationExists bool     `json:"annotation_exists"`
}

// BooksPage is one page of the paginated catalog listing.
type BooksPage struct {
	Items []Book `json:"items"`
	Total int    `json:"total"`
	Page  int    `json:"page"`
	Size  int    `json:"size"`
	Pages int    `json:"pages"`
}

// Caption builds the relay caption: a title line followed by author and
// translator lines. Lines that would push the caption past CaptionMaxRunes
// are dropped whole.
func (b Book) Caption() string {
	title := "📖 " + strings.TrimSpace(b.Title)
	if utf8.RuneCountInString(title) > CaptionMaxRunes {
		return string([]rune(title)[:CaptionMaxRunes])
	}

	var sb strings.Builder
	sb.WriteString(title)
	size := utf8.RuneCountInString(title)

	add := func(header, marker string, people []Person) {
		if len(people) == 0 {
			return
		}
		block := "\n\n" + header
		if size+utf8.RuneCountInString(block) > CaptionMaxRunes {
			return
		}
		wrote := false
		for _, p := range people {
			name := p.FullName()
			if name == "" {
				continue
			}
			line := "\n" + marker + " " + name
			extra := utf8.RuneCountInString(line)
			if !wrote {
				extra += utf8.RuneCountInString(block)
			}
			if size+extra > CaptionMaxRunes {
				break
			}
			if !wrote {
				sb.WriteString(block)
				wrote = true
			}
			sb.WriteString(line)
			size += extra
		}
	}

	add("Авторы:", "👤", b.Authors)
	add("Переводчики:", "🌐", b.Translators)
	return sb.String()
}
