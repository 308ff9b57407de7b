package commlink

import "errors"

var (
	ErrInvalidCfg = errors.New("commlink: invalid options")

	ErrBind            = errors.New("commlink: could not bind publisher endpoint")
	ErrPublisherClosed = errors.New("commlink: publisher is closed")

	ErrTopicNotRegistered = errors.New("commlink: topic was not subscribed at construction")
	ErrSubscriberClosed   = errors.New("commlink: subscriber is closed")
)
