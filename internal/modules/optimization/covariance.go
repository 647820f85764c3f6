package optimization

import (
	"fmt"
	"math"

	"github.com/aristath/portfolio-analytics/internal/domain"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Inputs are the estimated moments an optimization runs on, in ticker order.
type Inputs struct {
	Tickers     []string
	MeanReturns []float64
	Covariance  *domain.CovarianceMatrix
}

// SampleCovariance estimates the sample covariance (N-1 denominator) of the
// asset returns in table.
func SampleCovariance(table *domain.ReturnTable) (*domain.CovarianceMatrix, error) {
	if table == nil || table.Assets() == 0 {
		return nil, &domain.InsufficientAssetsError{Operation: "covariance", Required: 1, Got: 0}
	}
	if table.Periods() < 2 {
		return nil, &domain.InsufficientDataError{Operation: "covariance", Required: 2, Got: table.Periods()}
	}
	for i, ticker := range table.Tickers {
		if len(table.Returns[i]) != table.Periods() {
			return nil, &domain.MisalignedSeriesError{
				Ticker:   ticker,
				Expected: table.Periods(),
				Got:      len(table.Returns[i]),
			}
		}
		for _, r := range table.Returns[i] {
			if math.IsNaN(r) || math.IsInf(r, 0) {
				return nil, fmt.Errorf("non-finite return for %s", ticker)
			}
		}
	}

	cov := mat.NewSymDense(table.Assets(), nil)
	stat.CovarianceMatrix(cov, table.Matrix(), nil)

	return &domain.CovarianceMatrix{
		Tickers: append([]string(nil), table.Tickers...),
		Matrix:  cov,
	}, nil
}

// InputsFromTable derives mean daily returns and the sample covariance
// from a return table.
func InputsFromTable(table *domain.ReturnTable) (*Inputs, error) {
	cov, err := SampleCovariance(table)
	if err != nil {
		return nil, err
	}

	means := make([]float64, table.Assets())
	for i := range table.Tickers {
		means[i] = stat.Mean(table.Returns[i], nil)
	}

	return &Inputs{
		Tickers:     cov.Tickers,
		MeanReturns: means,
		Covariance:  cov,
	}, nil
}

func (in *Inputs) validate() error {
	if in == nil || in.Covariance == nil || in.Covariance.Matrix == nil {
		return fmt.Errorf("optimization inputs are incomplete")
	}
	n := len(in.Tickers)
	if len(in.MeanReturns) != n {
		return fmt.Errorf("got %d mean returns for %d tickers", len(in.MeanReturns), n)
	}
	if size := in.Covariance.Matrix.SymmetricDim(); size != n {
		return fmt.Errorf("covariance matrix is %dx%d, expected %dx%d", size, size, n, n)
	}
	return nil
}
