package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/comigor/toolhop/internal/config"
	"github.com/stretchr/testify/require"
)

func builtinRegistry(t *testing.T, weatherURL string) *Registry {
	t.Helper()
	r := NewRegistry()
	deps := Deps{
		Catalog: DefaultCatalog(),
		Weather: NewWeatherClient(config.WeatherConfig{BaseURL: weatherURL}),
	}
	require.NoError(t, RegisterBuiltins(r, deps, AllBuiltins...))
	return r
}

func TestBuiltin_EveryIDResolves(t *testing.T) {
	deps := Deps{Catalog: DefaultCatalog(), Weather: NewWeatherClient(config.WeatherConfig{BaseURL: "http://unused"})}
	for _, id := range AllBuiltins {
		spec, err := Builtin(id, deps)
		require.NoError(t, err, id)
		require.Equal(t, string(id), spec.Name)
		require.NotNil(t, spec.Schema)
		require.NotEmpty(t, spec.Schema.Required, id)
	}

	_, err := Builtin(ID("bogus"), deps)
	require.Error(t, err)
	_, err = Builtin(GetGenre, Deps{})
	require.Error(t, err)
}

func TestBuiltin_MovieChain(t *testing.T) {
	r := builtinRegistry(t, "http://unused")
	ctx := context.Background()

	res, err := r.Dispatch(ctx, "fetch_past_reviews", `{"user_id":101}`)
	require.NoError(t, err)
	require.JSONEq(t, `[[1,"Loved it, great sci-fi!"],[2,"Okayish, too slow"],[3,"Amazing visuals, would watch again"]]`, res.Content)

	res, err = r.Dispatch(ctx, "fetch_past_reviews", `{"user_id":999}`)
	require.NoError(t, err)
	require.JSONEq(t, `[]`, res.Content)

	res, err = r.Dispatch(ctx, "getGenre", `{"movie_ids":[1]}`)
	require.NoError(t, err)
	require.JSONEq(t, `["Adventure","Drama","Sci-Fi"]`, res.Content)

	res, err = r.Dispatch(ctx, "getMovies", `{"genres":["Adventure","Drama","Sci-Fi"],"pastIds":[1,2]}`)
	require.NoError(t, err)
	require.JSONEq(t, `["Blade Runner 2049","La La Land","Arrival","Mad Max: Fury Road","Whiplash","Inception"]`, res.Content)

	_, err = r.Dispatch(ctx, "getMovies", `{"genres":["Drama"]}`)
	var invalid *InvalidArgumentsError
	require.ErrorAs(t, err, &invalid)

	_, err = r.Dispatch(ctx, "getGenre", `{"movie_ids":["one"]}`)
	require.ErrorAs(t, err, &invalid)
	require.Contains(t, invalid.Reason, "movie_ids[0]")
}

func TestBuiltin_Weather(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch req.URL.Path {
		case "/London":
			require.Equal(t, "j1", req.URL.Query().Get("format"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"current_condition":[{"temp_C":"18","FeelsLikeC":"17","humidity":"60","windspeedKmph":"11","weatherDesc":[{"value":"Sunny"}]}]}`))
		default:
			http.Error(w, "unknown location", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	r := builtinRegistry(t, srv.URL)
	res, err := r.Dispatch(context.Background(), "get_weather", `{"city":"London"}`)
	require.NoError(t, err)
	require.False(t, res.Failed)
	require.Equal(t, "Weather in London: 18°C, Sunny, Humidity: 60%, Wind: 11 km/h, Feels like: 17°C", res.Content)

	res, err = r.Dispatch(context.Background(), "get_weather", `{"city":"Atlantisxyz"}`)
	require.NoError(t, err)
	require.True(t, res.Failed)
	require.Contains(t, res.Content, "404")
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
movies:
  - id: 10
    name: Paddington 2
    genres: [Family, Comedy]
  - id: 11
    name: Heat
    genres: [Crime]
reviews:
  - user_id: 7
    movie_id: 11
    review: Loved it
`), 0o600))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, c.Movies, 2)
	require.Equal(t, [][2]any{{11, "Loved it"}}, c.PastReviews(7))
	require.Equal(t, []string{"Crime"}, c.Genres([]int{11}))
	require.Equal(t, []string{"Paddington 2"}, c.MoviesMatching([]string{" Comedy "}, nil))

	require.NoError(t, os.WriteFile(path, []byte("movies: []\n"), 0o600))
	_, err = LoadCatalog(path)
	require.Error(t, err)
}
