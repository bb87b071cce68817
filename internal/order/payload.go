package order

import (
	"github.com/shopspring/decimal"

	"github.com/thomas/lilyan-terminal-go/internal/api"
)

// money converts an amount to its wire form at currency precision.
func money(d decimal.Decimal) float64 {
	return d.Round(Places).InexactFloat64()
}

// buildPayload is the only mapping from draft field names to wire names.
func buildPayload(d Draft, t Totals) *api.OrderRequest {
	req := &api.OrderRequest{
		Products:            make([]api.LineItem, 0, len(d.Items)),
		Subtotal:            money(t.Subtotal),
		DiscountAmount:      money(t.Discount),
		ShippingCost:        money(t.Shipping),
		TotalAmount:         money(t.Grand),
		PromoDiscount:       d.DiscountPercent.InexactFloat64(),
		OrderType:           string(d.Fulfillment),
		UserInfo:            api.UserInfo{Name: d.CustomerName, Phone: d.CustomerPhone, Email: d.CustomerEmail},
		SpecialInstructions: d.Instructions,
		CustomerPhone:       Digits(d.CustomerPhone),
		CustomerEmail:       d.CustomerEmail,
		PaymentMethod:       d.PaymentMethod,
	}

	for _, it := range d.Items {
		req.Products = append(req.Products, api.LineItem{
			Product:  it.ID,
			Quantity: it.Quantity,
			Price:    money(it.Price),
			Message:  it.Message,
		})
	}

	if d.PromoCode != "" && d.DiscountPercent.IsPositive() {
		req.PromoCode = d.PromoCode
	} else {
		req.PromoDiscount = 0
	}

	if d.Slot.Complete() {
		req.ScheduleTime = &api.ScheduleTime{
			Date:      d.Slot.Date,
			TimeSlot:  d.Slot.Label,
			StartTime: d.Slot.Start,
			EndTime:   d.Slot.End,
		}
	}

	if d.Fulfillment == Delivery {
		req.ShippingAddress = &api.ShippingAddress{
			City:           d.Address.City,
			Area:           d.Address.Area,
			Street:         d.Address.Street,
			Block:          d.Address.Block,
			House:          d.Address.House,
			Landmark:       d.Address.Landmark,
			AdditionalInfo: d.Address.AdditionalInfo,
		}
	}
	return req
}
