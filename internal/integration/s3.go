package integration

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"flowjs-works/aslcompiler/internal/graph"
)

// s3Hook lowers s3.get/s3.put(config) to a Task invoking Step Functions'
// AWS SDK integration for S3, validating Bucket/Key shape at compile
// time by constructing the real SDK input types — never building a
// client or calling out (spec.md §5, §4.10).
type s3Hook struct{}

func newS3Hook() *s3Hook { return &s3Hook{} }

func (h *s3Hook) Name() string { return "s3" }

func (h *s3Hook) Lower(call Call) (*graph.NodeState, error) {
	m, err := configMap(call, 0)
	if err != nil {
		return nil, err
	}
	bucket, err := constString(call, m, "bucket")
	if err != nil {
		return nil, err
	}
	key, err := constString(call, m, "key")
	if err != nil {
		return nil, err
	}

	var sdkMethod string
	params := map[string]interface{}{"Bucket": bucket, "Key": key}
	switch call.Method {
	case "get":
		in := &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)}
		if in.Bucket == nil || aws.ToString(in.Bucket) == "" {
			return nil, configErr(call, "s3.get: missing bucket")
		}
		sdkMethod = "getObject"
	case "put":
		in := &s3.PutObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)}
		if in.Bucket == nil || aws.ToString(in.Bucket) == "" {
			return nil, configErr(call, "s3.put: missing bucket")
		}
		if body, ok := m["body"]; ok {
			params["Body"] = body
		}
		sdkMethod = "putObject"
	default:
		return nil, configErr(call, "s3.%s is not supported, expected get or put", call.Method)
	}

	return &graph.NodeState{
		Type:       graph.TypeTask,
		Resource:   "arn:aws:states:::aws-sdk:s3:" + sdkMethod,
		Parameters: toParams(params),
	}, nil
}
