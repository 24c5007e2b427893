package validators

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/angelmondragon/storefront-backend/internal/catalogue"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/go-chi/chi/v5"
)

const maxFilterLen = 120

// ParseProductID reads the {productId} path parameter as a positive integer.
func ParseProductID(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "productId"))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "product id must be a positive integer").WithDetails(map[string]any{"field": "productId", "value": raw})
	}
	return id, nil
}

// ParseDecreasePolicy reads ?policy=, falling back to def when absent.
func ParseDecreasePolicy(r *http.Request, def enums.DecreasePolicy) (enums.DecreasePolicy, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("policy"))
	if raw == "" {
		return def, nil
	}
	policy, err := enums.ParseDecreasePolicy(raw)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid decrease policy").WithDetails(map[string]any{
			"field":   "policy",
			"allowed": []string{enums.DecreasePolicyDeleteOnZero.String(), enums.DecreasePolicyClampAtOne.String()},
		})
	}
	return policy, nil
}

// ParseCatalogueFilter reads the category, brand and q query parameters.
func ParseCatalogueFilter(r *http.Request) catalogue.Filter {
	q := r.URL.Query()
	return catalogue.Filter{
		Category: sanitize(q.Get("category")),
		Brand:    sanitize(q.Get("brand")),
		Query:    sanitize(q.Get("q")),
	}
}

func sanitize(input string) string {
	trimmed := strings.TrimSpace(input)
	if len(trimmed) > maxFilterLen {
		return trimmed[:maxFilterLen]
	}
	return trimmed
}
