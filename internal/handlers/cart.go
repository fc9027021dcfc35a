package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/restitch/restitch/internal/cart"
	"github.com/restitch/restitch/internal/db"
	"github.com/restitch/restitch/internal/models"
	"github.com/restitch/restitch/internal/session"
)

type addToCartRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

func (h *Handlers) Cart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := session.GetSessionFromContext(ctx)
	if sess == nil {
		h.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: "Session unavailable."})
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, h.summarizeCart(ctx, sess.Cart))
}

func (h *Handlers) AddToCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)
	sess := session.GetSessionFromContext(ctx)
	if sess == nil {
		h.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: "Session unavailable."})
		return
	}

	var req addToCartRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	product, err := h.store.GetProduct(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeJSON(ctx, w, http.StatusNotFound, errorResponse{Error: "Product not found."})
			return
		}
		logger.Error("failed to load product", "error", err, "product_id", req.ProductID)
		h.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: "Failed to update cart."})
		return
	}

	if err := sess.Cart.Add(product, req.Quantity); err != nil {
		switch {
		case errors.Is(err, cart.ErrInvalidQuantity):
			h.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{Error: "Quantity must be between 1 and 10."})
		case errors.Is(err, cart.ErrOutOfStock):
			h.writeJSON(ctx, w, http.StatusConflict, errorResponse{Error: "Not enough stock for this product."})
		default:
			logger.Error("failed to add to cart", "error", err, "product_id", req.ProductID)
			h.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: "Failed to update cart."})
		}
		return
	}

	if err := h.sessionManager.UpdateSession(ctx, sess); err != nil {
		logger.Error("failed to save cart", "error", err)
		h.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: "Failed to update cart."})
		return
	}

	logger.Info("added product to cart", "product_id", product.ID, "quantity", req.Quantity)
	h.writeJSON(ctx, w, http.StatusOK, h.summarizeCart(ctx, sess.Cart))
}

func (h *Handlers) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)
	sess := session.GetSessionFromContext(ctx)
	if sess == nil {
		h.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: "Session unavailable."})
		return
	}

	productID, err := pathID(r, "productID")
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	if err := sess.Cart.Remove(productID); err != nil {
		h.writeJSON(ctx, w, http.StatusNotFound, errorResponse{Error: "Product is not in the cart."})
		return
	}
	if err := h.sessionManager.UpdateSession(ctx, sess); err != nil {
		logger.Error("failed to save cart", "error", err)
		h.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: "Failed to update cart."})
		return
	}

	h.writeJSON(ctx, w, http.StatusOK, h.summarizeCart(ctx, sess.Cart))
}

func (h *Handlers) summarizeCart(ctx context.Context, c *cart.Cart) cart.Summary {
	return c.Summarize(func(id int64) (*models.Product, bool) {
		product, err := h.store.GetProduct(ctx, id)
		if err != nil {
			if !errors.Is(err, db.ErrNotFound) {
				h.loggerFromContext(ctx).Warn("failed to price cart line", "error", err, "product_id", id)
			}
			return nil, false
		}
		return product, true
	})
}

// ClearCart drops the browsing session along with its cart and expires the
// cookie.
func (h *Handlers) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.sessionManager.DestroySession(ctx, w, r); err != nil {
		h.loggerFromContext(ctx).Error("failed to clear cart", "error", err)
		h.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: "Failed to clear cart."})
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, h.summarizeCart(ctx, cart.New()))
}
