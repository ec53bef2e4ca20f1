package sns

import (
	"encoding/json"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sns"
)

// API bundles common SNS interactions in a reasonably sized interface.
type API interface {
	Publish(*sns.PublishInput) (*sns.PublishOutput, error)
}

// PushFunc delivers a resident-facing message to the estate topic.
type PushFunc func(userID uint64, title, message string) error

// Push returns a PushFunc publishing to the given topic.
func Push(api API, topicARN string) PushFunc {
	return func(userID uint64, title, message string) error {
		raw, err := json.Marshal(struct {
			Message string `json:"message"`
			Title   string `json:"title"`
			UserID  uint64 `json:"user_id"`
		}{
			Message: message,
			Title:   title,
			UserID:  userID,
		})
		if err != nil {
			return err
		}

		_, err = api.Publish(&sns.PublishInput{
			Message:  aws.String(string(raw)),
			TopicArn: aws.String(topicARN),
		})
		if err != nil {
			return wrapError(ErrDeliveryFailure, "%s", err)
		}

		return nil
	}
}
