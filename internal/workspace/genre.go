package workspace

import "strings"

type Genre string

const (
	GenreFantasy   Genre = "fantasy"
	GenreAdventure Genre = "adventure"
	GenreMystery   Genre = "mystery"
	GenreRomance   Genre = "romance"
	GenreSciFi     Genre = "scifi"
	GenreHorror    Genre = "horror"
	GenreComedy    Genre = "comedy"
	GenreDrama     Genre = "drama"

	DefaultGenre = GenreFantasy
)

type GenreOption struct {
	Genre Genre  `json:"value"`
	Label string `json:"label"`
	Emoji string `json:"emoji"`
}

var genreOptions = []GenreOption{
	{Genre: GenreFantasy, Label: "Fantasy", Emoji: "🧙"},
	{Genre: GenreAdventure, Label: "Adventure", Emoji: "🗺️"},
	{Genre: GenreMystery, Label: "Mystery", Emoji: "🔍"},
	{Genre: GenreRomance, Label: "Romance", Emoji: "💖"},
	{Genre: GenreSciFi, Label: "Sci-Fi", Emoji: "🚀"},
	{Genre: GenreHorror, Label: "Horror", Emoji: "👻"},
	{Genre: GenreComedy, Label: "Comedy", Emoji: "😂"},
	{Genre: GenreDrama, Label: "Drama", Emoji: "🎭"},
}

// Genres returns the catalog in display order.
func Genres() []GenreOption {
	out := make([]GenreOption, len(genreOptions))
	copy(out, genreOptions)
	return out
}

func ParseGenre(value string) (Genre, bool) {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, o := range genreOptions {
		if string(o.Genre) == value {
			return o.Genre, true
		}
	}
	return "", false
}

func (g Genre) Label() string {
	for _, o := range genreOptions {
		if o.Genre == g {
			return o.Label
		}
	}
	return string(g)
}

func (g Genre) Emoji() string {
	for _, o := range genreOptions {
		if o.Genre == g {
			return o.Emoji
		}
	}
	return ""
}
