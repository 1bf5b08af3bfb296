package handler

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/shop-dashboard/internal/core/domain"
	"github.com/rl1809/shop-dashboard/internal/core/service"
)

const cartServiceName = "shopdashboard.cart.v1.CartService"

type AddItemRequest struct {
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
	ProductID string `json:"product_id"`
}

type AddItemResponse struct {
	TransactionID string            `json:"transaction_id"`
	Version       int32             `json:"version"`
	Created       bool              `json:"created"`
	InStock       bool              `json:"in_stock"`
	Message       string            `json:"message"`
	LineItems     []domain.LineItem `json:"line_items"`
}

type GetTransactionRequest struct {
	TransactionID string `json:"transaction_id"`
}

type ListTransactionsRequest struct {
	UserID  string `json:"user_id"`
	Listing string `json:"listing"`
}

type ListTransactionsResponse struct {
	Transactions []*TransactionMessage `json:"transactions"`
}

type TransitionStatusRequest struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
}

type TransactionMessage struct {
	ID                string            `json:"id"`
	UserID            string            `json:"user_id"`
	Status            string            `json:"status"`
	Version           int32             `json:"version"`
	LineItems         []domain.LineItem `json:"line_items"`
	Total             string            `json:"total,omitempty"`
	TotalIncomplete   bool              `json:"total_incomplete,omitempty"`
	MissingProductIDs []string          `json:"missing_product_ids,omitempty"`
	CreatedAtUnix     int64             `json:"created_at_unix"`
	UpdatedAtUnix     int64             `json:"updated_at_unix"`
}

// CartServiceServer is the server API for the cart gRPC service.
type CartServiceServer interface {
	AddItem(context.Context, *AddItemRequest) (*AddItemResponse, error)
	GetTransaction(context.Context, *GetTransactionRequest) (*TransactionMessage, error)
	ListTransactions(context.Context, *ListTransactionsRequest) (*ListTransactionsResponse, error)
	TransitionStatus(context.Context, *TransitionStatusRequest) (*TransactionMessage, error)
}

type GRPCHandler struct {
	cartService *service.CartService
	logger      *zap.Logger
}

func NewGRPCHandler(cartService *service.CartService, logger *zap.Logger) *GRPCHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GRPCHandler{cartService: cartService, logger: logger}
}

func (h *GRPCHandler) AddItem(ctx context.Context, req *AddItemRequest) (*AddItemResponse, error) {
	snap, err := h.cartService.AddItemOnce(ctx, req.RequestID, req.UserID, req.ProductID)
	if err != nil {
		return nil, h.mapError(err)
	}

	return &AddItemResponse{
		TransactionID: snap.TransactionID,
		Version:       int32(snap.Version),
		Created:       snap.Created,
		InStock:       snap.InStock,
		Message:       snap.Message,
		LineItems:     snap.LineItems,
	}, nil
}

func (h *GRPCHandler) GetTransaction(ctx context.Context, req *GetTransactionRequest) (*TransactionMessage, error) {
	view, err := h.cartService.GetTransaction(ctx, req.TransactionID)
	if err != nil {
		return nil, h.mapError(err)
	}
	return toTransactionMessage(view.Transaction, &view.Total), nil
}

func (h *GRPCHandler) ListTransactions(ctx context.Context, req *ListTransactionsRequest) (*ListTransactionsResponse, error) {
	filter, err := domain.FilterForListing(req.UserID, req.Listing)
	if err != nil {
		return nil, h.mapError(err)
	}

	views, err := h.cartService.ListTransactions(ctx, filter)
	if err != nil {
		return nil, h.mapError(err)
	}

	resp := &ListTransactionsResponse{Transactions: make([]*TransactionMessage, 0, len(views))}
	for _, v := range views {
		resp.Transactions = append(resp.Transactions, toTransactionMessage(v.Transaction, &v.Total))
	}
	return resp, nil
}

func (h *GRPCHandler) TransitionStatus(ctx context.Context, req *TransitionStatusRequest) (*TransactionMessage, error) {
	st, err := domain.ParseTransactionStatus(req.Status)
	if err != nil {
		return nil, h.mapError(err)
	}

	tx, err := h.cartService.TransitionStatus(ctx, req.TransactionID, st)
	if err != nil {
		return nil, h.mapError(err)
	}
	return toTransactionMessage(tx, nil), nil
}

// mapError converts service errors into gRPC status errors.
func (h *GRPCHandler) mapError(err error) error {
	switch {
	case errors.Is(err, service.ErrDuplicateRequest):
		return status.Error(codes.AlreadyExists, "duplicate request")
	case errors.Is(err, domain.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidState):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}

	h.logger.Error("grpc request failed", zap.Error(err))
	return status.Error(codes.Internal, "internal error")
}

func toTransactionMessage(tx domain.Transaction, total *service.Total) *TransactionMessage {
	items := tx.LineItems
	if items == nil {
		items = []domain.LineItem{}
	}

	msg := &TransactionMessage{
		ID:            tx.ID,
		UserID:        tx.UserID,
		Status:        string(tx.Status),
		Version:       int32(tx.Version),
		LineItems:     items,
		CreatedAtUnix: tx.CreatedAt.Unix(),
		UpdatedAtUnix: tx.UpdatedAt.Unix(),
	}
	if total != nil {
		msg.Total = total.Amount.StringFixed(2)
		msg.TotalIncomplete = total.Incomplete
		msg.MissingProductIDs = total.MissingProductIDs
	}
	return msg
}

func RegisterCartServiceServer(s grpc.ServiceRegistrar, srv CartServiceServer) {
	s.RegisterService(&CartServiceDesc, srv)
}

// CartServiceDesc describes the cart service for a JSON-coded gRPC server.
var CartServiceDesc = grpc.ServiceDesc{
	ServiceName: cartServiceName,
	HandlerType: (*CartServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "AddItem", Handler: unaryHandler("AddItem", func(srv CartServiceServer, ctx context.Context, req *AddItemRequest) (any, error) {
			return srv.AddItem(ctx, req)
		})},
		{MethodName: "GetTransaction", Handler: unaryHandler("GetTransaction", func(srv CartServiceServer, ctx context.Context, req *GetTransactionRequest) (any, error) {
			return srv.GetTransaction(ctx, req)
		})},
		{MethodName: "ListTransactions", Handler: unaryHandler("ListTransactions", func(srv CartServiceServer, ctx context.Context, req *ListTransactionsRequest) (any, error) {
			return srv.ListTransactions(ctx, req)
		})},
		{MethodName: "TransitionStatus", Handler: unaryHandler("TransitionStatus", func(srv CartServiceServer, ctx context.Context, req *TransitionStatusRequest) (any, error) {
			return srv.TransitionStatus(ctx, req)
		})},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cart.json",
}

func unaryHandler[Req any](method string, call func(CartServiceServer, context.Context, *Req) (any, error)) grpc.MethodHandler {
	fullMethod := "/" + cartServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(CartServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(CartServiceServer), ctx, req.(*Req))
		})
	}
}

// CartServiceClient calls the cart service using the JSON codec.
type CartServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewCartServiceClient(cc grpc.ClientConnInterface) *CartServiceClient {
	return &CartServiceClient{cc: cc}
}

func (c *CartServiceClient) AddItem(ctx context.Context, in *AddItemRequest, opts ...grpc.CallOption) (*AddItemResponse, error) {
	out := new(AddItemResponse)
	if err := c.invoke(ctx, "AddItem", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CartServiceClient) GetTransaction(ctx context.Context, in *GetTransactionRequest, opts ...grpc.CallOption) (*TransactionMessage, error) {
	out := new(TransactionMessage)
	if err := c.invoke(ctx, "GetTransaction", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CartServiceClient) ListTransactions(ctx context.Context, in *ListTransactionsRequest, opts ...grpc.CallOption) (*ListTransactionsResponse, error) {
	out := new(ListTransactionsResponse)
	if err := c.invoke(ctx, "ListTransactions", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CartServiceClient) TransitionStatus(ctx context.Context, in *TransitionStatusRequest, opts ...grpc.CallOption) (*TransactionMessage, error) {
	out := new(TransactionMessage)
	if err := c.invoke(ctx, "TransitionStatus", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CartServiceClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(JSONCodecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+cartServiceName+"/"+method, in, out, opts...)
}
