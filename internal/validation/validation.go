package validation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/kjstillabower/weather-forecast-display/internal/models"
)

var validate = validator.New()

// ErrCoordinatesIncomplete is returned when only one of lat and lon is given.
var ErrCoordinatesIncomplete = errors.New("lat and lon must be provided together")

// ErrInvalidCoordinates is returned when lat or lon is not a valid WGS84 value.
var ErrInvalidCoordinates = errors.New("invalid coordinates")

// ErrAPIKeyEmpty is returned when the API key is empty after trim.
var ErrAPIKeyEmpty = errors.New("API key is required")

// ErrAPIKeyFormat is returned when the API key has the wrong length or characters.
var ErrAPIKeyFormat = errors.New("API key format is invalid")

// ErrInvalidRefresh is returned when the refresh flag is not a boolean.
var ErrInvalidRefresh = errors.New("refresh must be a boolean")

type coordinateQuery struct {
	Lat string `validate:"required,latitude"`
	Lon string `validate:"required,longitude"`
}

// ParseCoordinates validates optional lat/lon query values. Both empty returns
// (nil, nil) so the caller falls back to saved or default coordinates.
func ParseCoordinates(lat, lon string) (*models.Coordinates, error) {
	q := coordinateQuery{Lat: strings.TrimSpace(lat), Lon: strings.TrimSpace(lon)}
	if q.Lat == "" && q.Lon == "" {
		return nil, nil
	}
	if q.Lat == "" || q.Lon == "" {
		return nil, ErrCoordinatesIncomplete
	}
	if err := validate.Struct(q); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCoordinates, fieldNames(err))
	}
	latV, err := strconv.ParseFloat(q.Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: lat", ErrInvalidCoordinates)
	}
	lonV, err := strconv.ParseFloat(q.Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: lon", ErrInvalidCoordinates)
	}
	return &models.Coordinates{Lat: latV, Lon: lonV}, nil
}

type apiKeyInput struct {
	Key string `validate:"min=16,max=64,alphanum"`
}

// ValidateAPIKey trims the key and checks it is 16 to 64 ASCII letters or digits.
// Returns the trimmed key.
func ValidateAPIKey(input string) (string, error) {
	in := apiKeyInput{Key: strings.TrimSpace(input)}
	if in.Key == "" {
		return "", ErrAPIKeyEmpty
	}
	if err := validate.Struct(in); err != nil {
		return "", ErrAPIKeyFormat
	}
	return in.Key, nil
}

// ParseRefresh parses the refresh query flag. Empty means false.
func ParseRefresh(s string) (bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, ErrInvalidRefresh
	}
	return v, nil
}

// fieldNames lists the lowercased fields that failed validation.
func fieldNames(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	names := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		names = append(names, strings.ToLower(fe.Field()))
	}
	return strings.Join(names, ", ")
}
