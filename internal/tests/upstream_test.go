package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ratedarts/fulfillment/internal/models"
	"github.com/ratedarts/fulfillment/internal/services"
)

// upstream plays the commerce platform under /admin/api/test, the image
// service under /picsart and object storage under /files.
type upstream struct {
	mu     sync.Mutex
	server *httptest.Server

	nextID   int64
	products map[int64]*services.RemoteProduct
	orders   map[int64]*services.RemoteOrder
	files    map[string][]byte
	attaches int
	photo    []byte
}

func newUpstream(t *testing.T, photo []byte) *upstream {
	t.Helper()
	u := &upstream{
		nextID:   5000,
		products: make(map[int64]*services.RemoteProduct),
		orders:   make(map[int64]*services.RemoteOrder),
		files:    make(map[string][]byte),
		photo:    photo,
	}
	u.server = httptest.NewServer(http.HandlerFunc(u.serveHTTP))
	t.Cleanup(u.server.Close)
	return u
}

func (u *upstream) serveHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasPrefix(r.URL.Path, "/files/"):
		u.serveFile(w, strings.TrimPrefix(r.URL.Path, "/files/"))
	case strings.HasPrefix(r.URL.Path, "/picsart/"):
		u.servePicsart(w, r)
	case strings.HasPrefix(r.URL.Path, "/admin/api/test/"):
		u.serveShopify(w, r, strings.TrimPrefix(r.URL.Path, "/admin/api/test/"))
	default:
		http.NotFound(w, r)
	}
}

func (u *upstream) serveFile(w http.ResponseWriter, key string) {
	u.mu.Lock()
	data, ok := u.files[key]
	u.mu.Unlock()
	if !ok && strings.HasPrefix(key, "results/") {
		data, ok = u.photo, true
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(data)
}

func (u *upstream) servePicsart(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil || r.FormValue("image_url") == "" {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"detail": "image_url is required"})
		return
	}
	op := strings.TrimPrefix(r.URL.Path, "/picsart/")
	result := fmt.Sprintf("%s/files/results/%s-%s.jpg", u.server.URL, strings.ReplaceAll(op, "/", "-"), r.FormValue("width"))
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "success",
		"data":   map[string]string{"id": "job", "url": result},
	})
}

func (u *upstream) serveShopify(w http.ResponseWriter, r *http.Request, path string) {
	u.mu.Lock()
	defer u.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && path == "products.json":
		var body struct {
			Product services.RemoteProduct `json:"product"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"errors": err.Error()})
			return
		}
		u.nextID++
		p := body.Product
		p.ID = u.nextID
		for i := range p.Variants {
			p.Variants[i].ID = p.ID*100 + int64(i)
			p.Variants[i].ProductID = p.ID
			p.Variants[i].Title = fmt.Sprintf("%s / %s / %s", p.Variants[i].Option1, p.Variants[i].Option2, p.Variants[i].Option3)
		}
		if len(p.Images) > 0 {
			p.Image = &p.Images[0]
		}
		u.products[p.ID] = &p
		writeJSON(w, http.StatusCreated, map[string]interface{}{"product": p})

	case r.Method == http.MethodPost && strings.HasSuffix(path, "/images.json"):
		id, _ := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(path, "products/"), "/images.json"), 10, 64)
		var body struct {
			Image services.RemoteImage `json:"image"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		u.attaches++
		img := body.Image
		img.ID = int64(u.attaches)
		img.ProductID = id
		writeJSON(w, http.StatusOK, map[string]interface{}{"image": img})

	case strings.HasPrefix(path, "products/"):
		id, _ := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(path, "products/"), ".json"), 10, 64)
		p, ok := u.products[id]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"errors": "Not Found"})
			return
		}
		if r.Method == http.MethodDelete {
			delete(u.products, id)
			writeJSON(w, http.StatusOK, map[string]string{})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"product": p})

	case path == "orders.json":
		summaries := make([]services.RemoteOrderSummary, 0, len(u.orders))
		for _, o := range u.orders {
			summaries = append(summaries, services.RemoteOrderSummary{ID: o.ID, OrderNumber: o.OrderNumber, CreatedAt: o.CreatedAt})
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"orders": summaries})

	case strings.HasPrefix(path, "orders/"):
		id, _ := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(path, "orders/"), ".json"), 10, 64)
		o, ok := u.orders[id]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"errors": "Not Found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"order": o})

	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"errors": "Not Found"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// The upstream doubles as object storage; stored keys are served back
// under /files so downloads of public urls work.

func (u *upstream) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.files[key] = append([]byte(nil), body...)
	return u.PublicURL(key), nil
}

func (u *upstream) Get(ctx context.Context, key string) ([]byte, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	data, ok := u.files[key]
	if !ok {
		return nil, &services.StorageError{Op: "get", Key: key, Err: errors.New("no such key"), Missing: true}
	}
	return data, nil
}

func (u *upstream) Delete(ctx context.Context, key string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.files, key)
	return nil
}

func (u *upstream) PublicURL(key string) string {
	return u.server.URL + "/files/" + key
}

func (u *upstream) seedFrames(t *testing.T, prefix string, editions ...string) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solidImage(16, 16, color.RGBA{A: 255})))
	for _, edition := range editions {
		for _, framing := range models.Framings {
			u.files[services.FrameAssetKey(prefix, edition, framing)] = buf.Bytes()
		}
	}
}

func (u *upstream) addProduct(p *services.RemoteProduct) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.products[p.ID] = p
}

func (u *upstream) addOrder(o *services.RemoteOrder) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.orders[o.ID] = o
}

func solidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func jpegPhoto(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, solidImage(w, h, color.RGBA{B: 200, A: 255}), nil))
	return buf.Bytes()
}
