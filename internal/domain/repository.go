package domain

import "context"

type SubscriberGateway interface {
	Save(ctx context.Context, subscribers []Subscriber) error
	Load(ctx context.Context) ([]Subscriber, error)
}
