package storage

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
)

func TestPutInputMarksSVGAsAttachment(t *testing.T) {
	c := &S3Client{bucket: "designs"}

	in := c.putInput("designs/1.svg", []byte("<svg/>"), "image/svg+xml; charset=utf-8")
	assert.Equal(t, "attachment", aws.ToString(in.ContentDisposition))
	assert.Equal(t, "designs", aws.ToString(in.Bucket))
	assert.Len(t, in.Metadata["checksum-sha256"], 64)

	in = c.putInput("designs/2.png", []byte("png"), "image/png")
	assert.Nil(t, in.ContentDisposition)
	assert.Equal(t, "image/png", aws.ToString(in.ContentType))
}

func TestURL(t *testing.T) {
	c := &S3Client{bucket: "designs"}
	assert.Equal(t, "https://designs.s3.amazonaws.com/a/b.png", c.URL("a/b.png"))

	c.publicURL = "https://cdn.shop.test"
	assert.Equal(t, "https://cdn.shop.test/a/b.png", c.URL("a/b.png"))
}
