package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"moex-bond-screener/internal/app"
	"moex-bond-screener/internal/yield"
)

var (
	calcSecID     string
	calcPrice     float64
	calcAccrued   float64
	calcFace      float64
	calcDays      int
	calcSumCoupon float64
)

var calcCmd = &cobra.Command{
	Use:   "calc",
	Short: "Show the net yield breakdown for manual inputs or a live bond",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.CalcOptions{SecID: calcSecID}
		if calcSecID == "" {
			if calcPrice <= 0 || calcFace <= 0 || calcDays <= 0 {
				return errors.New("--price, --face and --days must be greater than 0 (or pass --secid)")
			}
			opts.Inputs = yield.Inputs{
				Price:            decimal.NewFromFloat(calcPrice),
				AccruedInt:       decimal.NewFromFloat(calcAccrued),
				FaceValue:        decimal.NewFromFloat(calcFace),
				DaysToRedemption: calcDays,
				SumCoupon:        decimal.NewFromFloat(calcSumCoupon),
			}
		}
		return getApp().Calc(cmd.Context(), opts)
	},
}

func init() {
	calcCmd.Flags().StringVar(&calcSecID, "secid", "", "Fetch inputs for this security from the exchange")
	calcCmd.Flags().Float64Var(&calcPrice, "price", 0, "Clean price, percent of face value")
	calcCmd.Flags().Float64Var(&calcAccrued, "accrued", 0, "Accrued coupon interest")
	calcCmd.Flags().Float64Var(&calcFace, "face", 1000, "Face value")
	calcCmd.Flags().IntVar(&calcDays, "days", 0, "Days to redemption")
	calcCmd.Flags().Float64Var(&calcSumCoupon, "sum-coupon", 0, "Sum of remaining coupons")
}
