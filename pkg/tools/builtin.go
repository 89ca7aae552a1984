package tools

import (
	"context"
	"fmt"
)

// ID names a built-in tool. The set is closed: every ID is handled by Builtin.
type ID string

const (
	FetchPastReviews ID = "fetch_past_reviews"
	GetGenre         ID = "getGenre"
	GetMovies        ID = "getMovies"
	SendResponse     ID = "sendResponse"
	GetWeather       ID = "get_weather"
)

// AllBuiltins lists every built-in tool in declaration order.
var AllBuiltins = []ID{FetchPastReviews, GetGenre, GetMovies, SendResponse, GetWeather}

// Deps carries the external state built-in executors read from.
type Deps struct {
	Catalog *Catalog
	Weather *WeatherClient
}

type pastReviewsArgs struct {
	UserID int `json:"user_id" description:"User id to fetch reviews for"`
}

type genreArgs struct {
	MovieIDs []int `json:"movie_ids" description:"List of movie ids"`
}

type moviesArgs struct {
	Genres  []string `json:"genres" description:"Target genres to match"`
	PastIDs []int    `json:"pastIds" description:"Movie ids the user has already watched to exclude"`
}

type sendResponseArgs struct {
	Response string `json:"response" description:"Final message to the user"`
}

type weatherArgs struct {
	City string `json:"city" description:"The city name to get weather for"`
}

// Builtin resolves id to its tool Spec.
func Builtin(id ID, deps Deps) (Spec, error) {
	switch id {
	case FetchPastReviews:
		if deps.Catalog == nil {
			return Spec{}, fmt.Errorf("%s needs a catalog", id)
		}
		return Spec{
			Name:        string(id),
			Description: "Return the (movie_id, review) pairs for this user_id.",
			Schema:      MustSchemaFor[pastReviewsArgs](),
			Kind:        KindLocal,
			Exec: Func(func(_ context.Context, a pastReviewsArgs) ([][2]any, error) {
				return deps.Catalog.PastReviews(a.UserID), nil
			}),
		}, nil
	case GetGenre:
		if deps.Catalog == nil {
			return Spec{}, fmt.Errorf("%s needs a catalog", id)
		}
		return Spec{
			Name:        string(id),
			Description: "Given a list of movie_ids, return the union of genres for those movies.",
			Schema:      MustSchemaFor[genreArgs](),
			Kind:        KindLocal,
			Exec: Func(func(_ context.Context, a genreArgs) ([]string, error) {
				return deps.Catalog.Genres(a.MovieIDs), nil
			}),
		}, nil
	case GetMovies:
		if deps.Catalog == nil {
			return Spec{}, fmt.Errorf("%s needs a catalog", id)
		}
		return Spec{
			Name:        string(id),
			Description: "Return movies whose genres intersect the provided genres, excluding pastIds.",
			Schema:      MustSchemaFor[moviesArgs](),
			Kind:        KindLocal,
			Exec: Func(func(_ context.Context, a moviesArgs) ([]string, error) {
				return deps.Catalog.MoviesMatching(a.Genres, a.PastIDs), nil
			}),
		}, nil
	case SendResponse:
		return Spec{
			Name:        string(id),
			Description: "Signal the final response to the user. Ends the multi-hop loop.",
			Schema:      MustSchemaFor[sendResponseArgs](),
			Kind:        KindTerminal,
			Exec: Func(func(_ context.Context, a sendResponseArgs) (string, error) {
				return a.Response, nil
			}),
		}, nil
	case GetWeather:
		if deps.Weather == nil {
			return Spec{}, fmt.Errorf("%s needs a weather client", id)
		}
		return Spec{
			Name:        string(id),
			Description: "Get current weather information for a city",
			Schema:      MustSchemaFor[weatherArgs](),
			Kind:        KindLocal,
			Exec: Func(func(ctx context.Context, a weatherArgs) (string, error) {
				return deps.Weather.Current(ctx, a.City)
			}),
		}, nil
	default:
		return Spec{}, fmt.Errorf("unknown builtin tool %q", id)
	}
}

// RegisterBuiltins registers the given built-in tools on r.
func RegisterBuiltins(r *Registry, deps Deps, ids ...ID) error {
	for _, id := range ids {
		spec, err := Builtin(id, deps)
		if err != nil {
			return err
		}
		if err := r.Register(spec); err != nil {
			return err
		}
	}
	return nil
}
