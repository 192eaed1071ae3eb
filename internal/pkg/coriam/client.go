package coriam

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/iam"
	"github.com/aws/aws-sdk-go/service/iam/iamiface"
	log "github.com/sirupsen/logrus"
)

// IAMClient provisions the role assumed by the Lambda executor
type IAMClient struct {
	iamiface.IAMAPI
}

// AssumePolicyDocument lets Lambda assume the executor role
const AssumePolicyDocument = `{
  "Version": "2012-10-17",
  "Statement": [
    {
      "Sid": "",
      "Effect": "Allow",
      "Principal": {
        "Service": [
          "lambda.amazonaws.com"
        ]
      },
      "Action": "sts:AssumeRole"
    }
  ]
}`

// AttachPolicyDocument grants the executor access to the shuffle store and its logs
const AttachPolicyDocument = `{
    "Version": "2012-10-17",
    "Statement": [
        {
            "Effect": "Allow",
            "Action": [
                "logs:CreateLogGroup",
                "logs:CreateLogStream",
                "logs:PutLogEvents"
            ],
            "Resource": "arn:aws:logs:*:*:*"
        },
        {
            "Effect": "Allow",
            "Action": [
                "s3:GetObject",
                "s3:PutObject",
                "s3:DeleteObject",
                "s3:ListBucket"
            ],
            "Resource": "arn:aws:s3:::*"
        }
    ]
}`

const tfidfPolicyName = "tfidf-permissions"

func (iamClient *IAMClient) deployRole(roleName string) (roleARN string, err error) {
	exists, err := iamClient.GetRole(&iam.GetRoleInput{
		RoleName: aws.String(roleName),
	})

	if exists != nil && exists.Role != nil && err == nil {
		log.Debugf("IAM Role '%s' already exists", roleName)
		if aws.StringValue(exists.Role.AssumeRolePolicyDocument) != AssumePolicyDocument {
			log.Debugf("Updating assume role policy of '%s'", roleName)
			_, err = iamClient.UpdateAssumeRolePolicy(&iam.UpdateAssumeRolePolicyInput{
				RoleName:       aws.String(roleName),
				PolicyDocument: aws.String(AssumePolicyDocument),
			})
		}
		return aws.StringValue(exists.Role.Arn), err
	}

	log.Debugf("Creating IAM role '%s'", roleName)
	role, err := iamClient.CreateRole(&iam.CreateRoleInput{
		AssumeRolePolicyDocument: aws.String(AssumePolicyDocument),
		RoleName:                 aws.String(roleName),
	})
	if err != nil {
		return "", err
	}
	return aws.StringValue(role.Role.Arn), nil
}

func (iamClient *IAMClient) deployPolicy(roleName string) error {
	exists, err := iamClient.GetRolePolicy(&iam.GetRolePolicyInput{
		RoleName:   aws.String(roleName),
		PolicyName: aws.String(tfidfPolicyName),
	})

	if exists != nil && err == nil && aws.StringValue(exists.PolicyDocument) == AttachPolicyDocument {
		log.Debugf("Policy '%s' already exists", tfidfPolicyName)
		return nil
	}

	log.Debugf("Putting policy '%s'", tfidfPolicyName)
	_, err = iamClient.PutRolePolicy(&iam.PutRolePolicyInput{
		PolicyName:     aws.String(tfidfPolicyName),
		PolicyDocument: aws.String(AttachPolicyDocument),
		RoleName:       aws.String(roleName),
	})
	return err
}

// DeployPermissions creates (or updates) the executor role and its inline
// policy, returning the role's ARN.
func (iamClient *IAMClient) DeployPermissions(roleName string) (roleARN string, err error) {
	roleARN, err = iamClient.deployRole(roleName)
	if err != nil {
		return roleARN, err
	}

	err = iamClient.deployPolicy(roleName)
	return roleARN, err
}

// DeletePermissions removes the executor role and its inline policy
func (iamClient *IAMClient) DeletePermissions(roleName string) error {
	_, err := iamClient.DeleteRolePolicy(&iam.DeleteRolePolicyInput{
		RoleName:   aws.String(roleName),
		PolicyName: aws.String(tfidfPolicyName),
	})
	if err != nil {
		return err
	}

	_, err = iamClient.DeleteRole(&iam.DeleteRoleInput{
		RoleName: aws.String(roleName),
	})
	return err
}

// NewIAMClient initializes a new IAMClient
func NewIAMClient() *IAMClient {
	sess := session.Must(session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
	}))
	return &IAMClient{
		iam.New(sess),
	}
}
