package tools

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Movie is one catalog entry.
type Movie struct {
	ID     int      `yaml:"id"`
	Name   string   `yaml:"name"`
	Genres []string `yaml:"genres"`
}

// Review is a user's opinion of a movie.
type Review struct {
	UserID  int    `yaml:"user_id"`
	MovieID int    `yaml:"movie_id"`
	Text    string `yaml:"review"`
}

// Catalog is the read-only data behind the movie tools.
type Catalog struct {
	Movies  []Movie  `yaml:"movies"`
	Reviews []Review `yaml:"reviews"`
}

// DefaultCatalog returns the built-in demo data set.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Reviews: []Review{
			{UserID: 101, MovieID: 1, Text: "Loved it, great sci-fi!"},
			{UserID: 101, MovieID: 2, Text: "Okayish, too slow"},
			{UserID: 101, MovieID: 3, Text: "Amazing visuals, would watch again"},
			{UserID: 202, MovieID: 2, Text: "Fantastic drama"},
			{UserID: 202, MovieID: 4, Text: "Not my type"},
		},
		Movies: []Movie{
			{ID: 1, Name: "Interstellar", Genres: []string{"Sci-Fi", "Adventure", "Drama"}},
			{ID: 2, Name: "The Irishman", Genres: []string{"Crime", "Drama"}},
			{ID: 3, Name: "Blade Runner 2049", Genres: []string{"Sci-Fi", "Thriller"}},
			{ID: 4, Name: "La La Land", Genres: []string{"Romance", "Musical", "Drama"}},
			{ID: 5, Name: "Arrival", Genres: []string{"Sci-Fi", "Drama"}},
			{ID: 6, Name: "Mad Max: Fury Road", Genres: []string{"Action", "Adventure", "Sci-Fi"}},
			{ID: 7, Name: "Whiplash", Genres: []string{"Drama", "Music"}},
			{ID: 8, Name: "Inception", Genres: []string{"Sci-Fi", "Action", "Thriller"}},
		},
	}
}

// LoadCatalog reads a YAML catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var c Catalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	if len(c.Movies) == 0 {
		return nil, fmt.Errorf("catalog %s has no movies", path)
	}
	return &c, nil
}

// PastReviews returns (movie_id, review) pairs written by userID.
func (c *Catalog) PastReviews(userID int) [][2]any {
	out := [][2]any{}
	for _, r := range c.Reviews {
		if r.UserID == userID {
			out = append(out, [2]any{r.MovieID, r.Text})
		}
	}
	return out
}

// Genres returns the sorted union of genres of the given movies.
func (c *Catalog) Genres(movieIDs []int) []string {
	out := []string{}
	for _, m := range c.Movies {
		if !slices.Contains(movieIDs, m.ID) {
			continue
		}
		for _, g := range m.Genres {
			if !slices.Contains(out, g) {
				out = append(out, g)
			}
		}
	}
	slices.Sort(out)
	return out
}

// MoviesMatching returns, in catalog order, the names of movies sharing a
// genre with genres and not listed in pastIDs.
func (c *Catalog) MoviesMatching(genres []string, pastIDs []int) []string {
	want := make(map[string]bool, len(genres))
	for _, g := range genres {
		want[strings.TrimSpace(g)] = true
	}
	out := []string{}
	for _, m := range c.Movies {
		if slices.Contains(pastIDs, m.ID) {
			continue
		}
		if slices.ContainsFunc(m.Genres, func(g string) bool { return want[g] }) {
			out = append(out, m.Name)
		}
	}
	return out
}
