package model

import "github.com/shopspring/decimal"

// FeePolicy holds the late-fee rates and the loan period. Rates are
// configurable (persisted overrides in the settings table) but changing them
// never recomputes due dates already fixed on existing loans.
type FeePolicy struct {
	BookDailyRate      decimal.Decimal `json:"book_daily_rate"`
	MagazineDailyRate  decimal.Decimal `json:"magazine_daily_rate"`
	MagazineFlatFee    decimal.Decimal `json:"magazine_flat_fee"`
	NewspaperDailyRate decimal.Decimal `json:"newspaper_daily_rate"`
	MediaMinuteRate    decimal.Decimal `json:"media_minute_rate"`
	MediaDailyRate     decimal.Decimal `json:"media_daily_rate"`
	LoanPeriodDays     int             `json:"loan_period_days"`
}

// DefaultFeePolicy returns the stock rates.
func DefaultFeePolicy() FeePolicy {
	return FeePolicy{
		BookDailyRate:      decimal.RequireFromString("0.50"),
		MagazineDailyRate:  decimal.RequireFromString("0.30"),
		MagazineFlatFee:    decimal.RequireFromString("1.00"),
		NewspaperDailyRate: decimal.RequireFromString("0.70"),
		MediaMinuteRate:    decimal.RequireFromString("1.00"),
		MediaDailyRate:     decimal.RequireFromString("2.00"),
		LoanPeriodDays:     14,
	}
}

// LateFee computes the penalty for a document returned daysLate whole days
// past its due date. Book, magazine and newspaper fees are zero for punctual
// returns. Media items additionally charge a duration-based component on
// every return, late or not.
func (p FeePolicy) LateFee(doc *Document, daysLate int) decimal.Decimal {
	if daysLate < 0 {
		daysLate = 0
	}
	days := decimal.NewFromInt(int64(daysLate))

	switch doc.Kind {
	case KindBook:
		return p.BookDailyRate.Mul(days)
	case KindMagazine:
		fee := p.MagazineDailyRate.Mul(days)
		if daysLate > 0 {
			fee = fee.Add(p.MagazineFlatFee)
		}
		return fee
	case KindNewspaper:
		return p.NewspaperDailyRate.Mul(days)
	case KindMedia:
		duration := decimal.NewFromInt(int64(doc.Attributes.DurationMinutes))
		return p.MediaMinuteRate.Mul(duration).Add(p.MediaDailyRate.Mul(days))
	}
	return decimal.Zero
}
