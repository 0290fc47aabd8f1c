// Package toolset binds the inventory and mail operations to named tools.
package toolset

import (
	"context"
	"fmt"

	"github.com/ainventory/ainventory-server/internal/fieesoft"
	"github.com/ainventory/ainventory-server/internal/mail"
	"github.com/ainventory/ainventory-server/internal/tools"
)

// Tool names.
const (
	SearchAssets        = "buscar_bienes"
	GetAsset            = "obtener_bien_por_id"
	AssetLocationChange = "buscar_cambios_ubicacion_de_bien"
	SendGmailEmail      = "send_gmail_email"
)

// Inventory is the subset of *fieesoft.Client the tools call.
type Inventory interface {
	SearchAssets(ctx context.Context, q fieesoft.SearchQuery) (*fieesoft.Page, error)
	GetAsset(ctx context.Context, id *int64) (any, error)
	AssetLocationHistory(ctx context.Context, id *int64) (any, error)
}

// Mailer is the subset of *mail.Sender the tools call.
type Mailer interface {
	Send(ctx context.Context, m mail.Message) mail.Result
}

var (
	nullableString  = map[string]any{"type": []any{"string", "null"}}
	nullableInteger = map[string]any{"type": []any{"integer", "null"}}
)

func withDescription(base map[string]any, desc string) map[string]any {
	out := make(map[string]any, len(base)+1)
	for k, v := range base {
		out[k] = v
	}
	out["description"] = desc
	return out
}

// Register adds every tool to reg.
func Register(reg *tools.Registry, inv Inventory, mailer Mailer) error {
	all := []tools.Tool{
		{
			Name: SearchAssets,
			Description: "Busca bienes en la API remota. Devuelve una estructura similar a Spring Page: " +
				`{ "content": [...], "number": 0, "size": 50, "totalElements": 123 }`,
			RiskTier: tools.RiskRead,
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"texto":       withDescription(nullableString, "Texto libre a buscar"),
					"nombreMarca": withDescription(nullableString, "Nombre de la marca"),
					"ubicacion":   withDescription(nullableString, "Ubicación del bien"),
					"estado":      withDescription(nullableString, "Estado del bien"),
					"page": map[string]any{
						"type":    []any{"integer", "null"},
						"default": fieesoft.DefaultPage,
					},
					"size": map[string]any{
						"type":    []any{"integer", "null"},
						"default": fieesoft.DefaultSize,
					},
				},
			},
			Handler: searchAssets(inv),
		},
		{
			Name:        GetAsset,
			Description: "Obtiene el detalle de un bien por id (GET /api/bienes/{id}).",
			RiskTier:    tools.RiskRead,
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id": withDescription(nullableInteger, "Identificador del bien"),
				},
			},
			Handler: getAsset(inv),
		},
		{
			Name:        AssetLocationChange,
			Description: "Placeholder: no implementado en el backend.",
			RiskTier:    tools.RiskRead,
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id": map[string]any{"description": "Identificador del bien"},
				},
			},
			Handler: assetLocationHistory(inv),
		},
		{
			Name:        SendGmailEmail,
			Description: "Envía un correo electrónico a través de Gmail.",
			RiskTier:    tools.RiskWrite,
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"to":        map[string]any{"type": "string", "description": "Dirección de correo del destinatario"},
					"subject":   map[string]any{"type": "string", "description": "Asunto del correo"},
					"body":      map[string]any{"type": "string", "description": "Cuerpo del correo en texto plano"},
					"html_body": withDescription(nullableString, "Cuerpo del correo en HTML (opcional)"),
					"cc":        withDescription(nullableString, "Direcciones de CC separadas por comas (opcional)"),
					"bcc":       withDescription(nullableString, "Direcciones de BCC separadas por comas (opcional)"),
				},
			},
			Handler: sendGmailEmail(mailer),
		},
	}

	for _, t := range all {
		if err := reg.Register(t); err != nil {
			return fmt.Errorf("toolset: %w", err)
		}
	}
	return nil
}

func searchAssets(inv Inventory) tools.Handler {
	return func(ctx context.Context, args tools.Arguments) (any, error) {
		page, err := args.IntOrDefault("page", fieesoft.DefaultPage)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", tools.ErrInvalidArguments, err)
		}
		size, err := args.IntOrDefault("size", fieesoft.DefaultSize)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", tools.ErrInvalidArguments, err)
		}

		result, err := inv.SearchAssets(ctx, fieesoft.SearchQuery{
			Text:      args.OptionalString("texto"),
			BrandName: args.OptionalString("nombreMarca"),
			Location:  args.OptionalString("ubicacion"),
			Status:    args.OptionalString("estado"),
			Page:      page,
			Size:      size,
		})
		if err != nil {
			return nil, err
		}
		return result, nil
	}
}

func getAsset(inv Inventory) tools.Handler {
	return func(ctx context.Context, args tools.Arguments) (any, error) {
		id, err := args.OptionalInt("id")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", tools.ErrInvalidArguments, err)
		}
		return inv.GetAsset(ctx, id)
	}
}

// assetLocationHistory reports the operation as unsupported whatever the
// arguments, so the id is not parsed.
func assetLocationHistory(inv Inventory) tools.Handler {
	return func(ctx context.Context, _ tools.Arguments) (any, error) {
		return inv.AssetLocationHistory(ctx, nil)
	}
}

func sendGmailEmail(mailer Mailer) tools.Handler {
	return func(ctx context.Context, args tools.Arguments) (any, error) {
		return mailer.Send(ctx, mail.Message{
			To:       args.String("to"),
			Subject:  args.String("subject"),
			Body:     args.String("body"),
			HTMLBody: args.String("html_body"),
			Cc:       args.String("cc"),
			Bcc:      args.String("bcc"),
		}), nil
	}
}
