package payment

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/account"
	"github.com/stripe/stripe-go/v76/accountlink"

	coachRepo "findmycoach/database/repository/coach"
)

// ConnectOnboarder provisions a coach's payable destination: an Express
// connected account plus a hosted onboarding link. A coach without a completed
// account cannot receive bookings.
type ConnectOnboarder struct {
	Coaches coachRepo.CoachDirectory
	BaseURL string // redirect target for the hosted onboarding flow
}

// OnboardingLink returns the URL the coach visits to finish payout onboarding,
// creating the connected account first if the coach has none yet.
func (o *ConnectOnboarder) OnboardingLink(ctx context.Context, coachID, email string) (string, error) {
	coach, err := o.Coaches.GetByUserID(ctx, coachID)
	if err != nil {
		return "", err
	}

	accountID := coach.PayoutAccountID
	if accountID == "" {
		params := &stripe.AccountParams{
			Params:       stripe.Params{Context: ctx},
			Type:         stripe.String(string(stripe.AccountTypeExpress)),
			Email:        stripe.String(email),
			Country:      stripe.String("US"),
			BusinessType: stripe.String(string(stripe.AccountBusinessTypeIndividual)),
			Capabilities: &stripe.AccountCapabilitiesParams{
				CardPayments: &stripe.AccountCapabilitiesCardPaymentsParams{Requested: stripe.Bool(true)},
				Transfers:    &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
			},
		}
		acct, err := account.New(params)
		if err != nil {
			return "", fmt.Errorf("failed to create connected account: %w", err)
		}
		accountID = acct.ID
		if err := o.Coaches.SetPayoutAccount(ctx, coachID, accountID); err != nil {
			return "", err
		}
	}

	linkParams := &stripe.AccountLinkParams{
		Params:     stripe.Params{Context: ctx},
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(o.BaseURL + "/coach/payouts?state=refresh"),
		ReturnURL:  stripe.String(o.BaseURL + "/coach/payouts?state=return"),
		Type:       stripe.String("account_onboarding"),
	}
	link, err := accountlink.New(linkParams)
	if err != nil {
		return "", fmt.Errorf("failed to create onboarding link: %w", err)
	}
	return link.URL, nil
}
